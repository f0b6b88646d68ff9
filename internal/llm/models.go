package llm

import "deepresearch/internal/config"

// ModelRates holds the per-1K-token pricing for one model tier.
type ModelRates struct {
	InputPer1K  float64
	OutputPer1K float64
}

// ratesFromConfig builds the smart/cheap rate tables from configuration.
func ratesFromConfig(cfg *config.Config) (smart, cheap ModelRates) {
	smart = ModelRates{InputPer1K: cfg.SmartInputCostPer1K, OutputPer1K: cfg.SmartOutputCostPer1K}
	cheap = ModelRates{InputPer1K: cfg.CheapInputCostPer1K, OutputPer1K: cfg.CheapOutputCostPer1K}
	return
}

// calculateCost computes dollar cost from token counts at the given rates.
func calculateCost(rates ModelRates, inputTokens, outputTokens int) CostBreakdown {
	inputCost := float64(inputTokens) * rates.InputPer1K / 1000
	outputCost := float64(outputTokens) * rates.OutputPer1K / 1000
	return CostBreakdown{
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
		InputCost:    inputCost,
		OutputCost:   outputCost,
		TotalCost:    inputCost + outputCost,
	}
}
