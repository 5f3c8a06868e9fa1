package schema

import "encoding/json"

// Patch is a partial session update. Nil fields are left unchanged;
// Responses entries are applied additively.
type Patch struct {
	CurrentStage         *string         `json:"current_stage,omitempty"`
	CurrentQuestionIndex *int            `json:"current_question_index,omitempty"`
	Responses            Responses       `json:"responses,omitempty"`
	Requirements         json.RawMessage `json:"requirements,omitempty"`
	Recommendations      json.RawMessage `json:"recommendations,omitempty"`
	IsComplete           *bool           `json:"is_complete,omitempty"`
	SelectedProvider     *string         `json:"selected_provider,omitempty"`
	SelectedModel        *string         `json:"selected_model,omitempty"`
}

// PatchFromSession builds a patch that sets every field of s.
func PatchFromSession(s *Session) Patch {
	if s == nil {
		return Patch{}
	}
	stage := s.CurrentStage
	idx := s.CurrentQuestionIndex
	complete := s.IsComplete
	p := Patch{
		CurrentStage:         &stage,
		CurrentQuestionIndex: &idx,
		Responses:            s.Responses.Clone(),
		Requirements:         cloneRaw(s.Requirements),
		Recommendations:      cloneRaw(s.Recommendations),
		IsComplete:           &complete,
	}
	if s.SelectedProvider != "" {
		v := s.SelectedProvider
		p.SelectedProvider = &v
	}
	if s.SelectedModel != "" {
		v := s.SelectedModel
		p.SelectedModel = &v
	}
	return p
}

// IsEmpty reports whether applying p would change nothing.
func (p Patch) IsEmpty() bool {
	return p.CurrentStage == nil &&
		p.CurrentQuestionIndex == nil &&
		len(p.Responses) == 0 &&
		p.Requirements == nil &&
		p.Recommendations == nil &&
		p.IsComplete == nil &&
		p.SelectedProvider == nil &&
		p.SelectedModel == nil
}

// Apply writes the set fields of p onto s.
func (p Patch) Apply(s *Session) {
	if p.CurrentStage != nil {
		s.CurrentStage = *p.CurrentStage
	}
	if p.CurrentQuestionIndex != nil {
		s.CurrentQuestionIndex = *p.CurrentQuestionIndex
	}
	if len(p.Responses) > 0 {
		if s.Responses == nil {
			s.Responses = make(Responses, len(p.Responses))
		}
		for k, v := range p.Responses.Clone() {
			s.Responses[k] = v
		}
	}
	if p.Requirements != nil {
		s.Requirements = cloneRaw(p.Requirements)
	}
	if p.Recommendations != nil {
		s.Recommendations = cloneRaw(p.Recommendations)
	}
	if p.IsComplete != nil {
		s.IsComplete = *p.IsComplete
	}
	if p.SelectedProvider != nil {
		s.SelectedProvider = *p.SelectedProvider
	}
	if p.SelectedModel != nil {
		s.SelectedModel = *p.SelectedModel
	}
}

// Merge combines p with a later patch; fields set in later win.
func (p Patch) Merge(later Patch) Patch {
	out := p
	out.Responses = p.Responses.Clone()
	if later.CurrentStage != nil {
		out.CurrentStage = later.CurrentStage
	}
	if later.CurrentQuestionIndex != nil {
		out.CurrentQuestionIndex = later.CurrentQuestionIndex
	}
	if len(later.Responses) > 0 {
		if out.Responses == nil {
			out.Responses = make(Responses, len(later.Responses))
		}
		for k, v := range later.Responses.Clone() {
			out.Responses[k] = v
		}
	}
	if later.Requirements != nil {
		out.Requirements = cloneRaw(later.Requirements)
	}
	if later.Recommendations != nil {
		out.Recommendations = cloneRaw(later.Recommendations)
	}
	if later.IsComplete != nil {
		out.IsComplete = later.IsComplete
	}
	if later.SelectedProvider != nil {
		out.SelectedProvider = later.SelectedProvider
	}
	if later.SelectedModel != nil {
		out.SelectedModel = later.SelectedModel
	}
	return out
}
