package healthdist

// View receives the computed reconciliation state. Implementations bind it to
// whatever presents the form: a DOM, a terminal prompt or a JSON response.
type View interface {
	SetSubmitEnabled(enabled bool)
	SetProgress(percentage int, state State)
	SetMessage(message string)
}

// Apply pushes result to view. It is the only place the submit control is gated.
func Apply(result Result, view View) {
	view.SetProgress(result.Percentage, result.State)
	view.SetMessage(result.Message)
	view.SetSubmitEnabled(result.SubmitEnabled)
}

// Form is a View that records the last applied state. It is the state the API
// returns to clients that validate as the user types.
type Form struct {
	SubmitEnabled bool   `json:"submit_enabled"`
	Percentage    int    `json:"percentage"`
	State         State  `json:"state"`
	Message       string `json:"message"`
}

// SetSubmitEnabled implements View.
func (f *Form) SetSubmitEnabled(enabled bool) { f.SubmitEnabled = enabled }

// SetProgress implements View.
func (f *Form) SetProgress(percentage int, state State) {
	f.Percentage = percentage
	f.State = state
}

// SetMessage implements View.
func (f *Form) SetMessage(message string) { f.Message = message }
