package llmrules

import (
	"testing"
)

func baseResponse() Response {
	return Response{
		ResolutionSource:    "noaa.gov",
		DefinitionSummary:   "resolves YES if high temp exceeds strike",
		RiskOfMisresolution: RiskLow,
		Confidence:          0.9,
		Uncertainty:         0.1,
		AsOfMs:              1700000000000,
	}
}

func TestValidate_RejectsOutOfRangeConfidence(t *testing.T) {
	resp := baseResponse()
	resp.Confidence = 1.5
	if err := Validate(Request{}, resp); err == nil {
		t.Fatal("expected error for confidence out of range")
	}
}

func TestValidate_RejectsOutOfRangeUncertainty(t *testing.T) {
	resp := baseResponse()
	resp.Uncertainty = -0.1
	if err := Validate(Request{}, resp); err == nil {
		t.Fatal("expected error for uncertainty out of range")
	}
}

func TestValidate_RejectsNonPositiveAsOf(t *testing.T) {
	resp := baseResponse()
	resp.AsOfMs = 0
	if err := Validate(Request{}, resp); err == nil {
		t.Fatal("expected error for non-positive as_of_ts_ms")
	}
}

func TestValidate_RejectsFactClaimsWithoutProvenance(t *testing.T) {
	resp := baseResponse()
	resp.FactClaims = []FactClaim{{Claim: "x", VerifiabilityScore: 0.5}}
	if err := Validate(Request{}, resp); err == nil {
		t.Fatal("expected error for fact claims without provenance")
	}
}

func TestValidate_RejectsSourceURLMissingFromProvenance(t *testing.T) {
	resp := baseResponse()
	resp.FactClaims = []FactClaim{{Claim: "x", SourceURL: "https://noaa.gov/a", VerifiabilityScore: 0.5}}
	resp.Provenance = []Provenance{{URL: "https://noaa.gov/b"}}
	if err := Validate(Request{}, resp); err == nil {
		t.Fatal("expected error for source_url missing from provenance")
	}
}

func TestValidate_RejectsNonAllowlistedURL(t *testing.T) {
	resp := baseResponse()
	resp.FactClaims = []FactClaim{{Claim: "x", SourceURL: "https://evil.example/a", VerifiabilityScore: 0.5}}
	resp.Provenance = []Provenance{{URL: "https://evil.example/a"}}
	req := Request{AllowedURLs: []string{"https://noaa.gov"}}
	if err := Validate(req, resp); err == nil {
		t.Fatal("expected error for non-allow-listed source_url")
	}
}

func TestValidate_AcceptsWellFormedResponse(t *testing.T) {
	resp := baseResponse()
	resp.FactClaims = []FactClaim{{Claim: "x", SourceURL: "https://noaa.gov/a", VerifiabilityScore: 0.8}}
	resp.Provenance = []Provenance{{URL: "https://noaa.gov/a"}}
	req := Request{AllowedURLs: []string{"https://noaa.gov"}}
	if err := Validate(req, resp); err != nil {
		t.Fatalf("unexpected validation error: %v", err)
	}
}

func TestToProbabilityEstimate_CriticalRiskCrushesConfidence(t *testing.T) {
	resp := baseResponse()
	resp.RiskOfMisresolution = RiskCritical
	resp.Confidence = 0.95
	resp.Uncertainty = 0.05
	est := ToProbabilityEstimate(resp, 0.8)
	if est.Confidence >= 0.2 {
		t.Errorf("confidence = %v, want heavily discounted for CRITICAL risk", est.Confidence)
	}
}

func TestToProbabilityEstimate_LowRiskPreservesConfidence(t *testing.T) {
	resp := baseResponse()
	est := ToProbabilityEstimate(resp, 0.8)
	if est.Confidence <= 0.5 {
		t.Errorf("confidence = %v, want relatively high for LOW risk clear signal", est.Confidence)
	}
	if est.PLow > est.P || est.P > est.PHigh {
		t.Errorf("bounds out of order: low=%v p=%v high=%v", est.PLow, est.P, est.PHigh)
	}
}

func TestParseResponse_ExtractsJSONFromWrapperText(t *testing.T) {
	raw := []byte(`{"content":[{"type":"text","text":"Here is the result:\n{\"resolution_source\":\"noaa.gov\",\"definition_summary\":\"d\",\"risk_of_misresolution\":\"LOW\",\"confidence\":0.9,\"uncertainty\":0.1,\"as_of_ts_ms\":1700000000000}\nThanks."}]}`)
	resp, err := parseResponse(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.ResolutionSource != "noaa.gov" {
		t.Errorf("ResolutionSource = %q, want noaa.gov", resp.ResolutionSource)
	}
}

func TestParseResponse_MissingTextBlockErrors(t *testing.T) {
	raw := []byte(`{"content":[{"type":"image","text":""}]}`)
	if _, err := parseResponse(raw); err == nil {
		t.Fatal("expected error for missing text content block")
	}
}
