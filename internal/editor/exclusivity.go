package editor

import "github.com/mohammed-shakir/geofilter-editor/internal/core/model"

// ComputeEffectiveRequest keeps at most one of bias and restriction. When
// both are set the restriction wins and a bias_dropped advisory is returned.
// The inputs are values; stored slots are never touched.
func ComputeEffectiveRequest(bias, restriction model.ShapeFilter) (model.ShapeFilter, model.ShapeFilter, []Advisory) {
	if !bias.IsNone() && !restriction.IsNone() {
		return model.NoShape(), restriction, []Advisory{{
			Code:    CodeBiasDropped,
			Message: "bias and restriction both set: dropping bias and keeping restriction",
			Slot:    model.SlotBias.String(),
		}}
	}
	return bias, restriction, nil
}
