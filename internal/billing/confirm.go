package billing

import "context"

// Prompt kinds.
const (
	PromptMerge     = "merge"
	PromptDelete    = "delete"
	PromptSaveFirst = "save_first"
)

// Prompt is a yes/no question put to the user.
type Prompt struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
	Field   string `json:"field"`
}

// Confirmer answers prompts on behalf of the user.
type Confirmer interface {
	Confirm(ctx context.Context, prompt Prompt) (bool, error)
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(ctx context.Context, prompt Prompt) (bool, error)

// Confirm implements Confirmer.
func (f ConfirmFunc) Confirm(ctx context.Context, prompt Prompt) (bool, error) { return f(ctx, prompt) }

// Answer replays a decision the HTTP client already collected. A nil answer
// means the user has not been asked yet.
func Answer(answer *bool) Confirmer {
	return ConfirmFunc(func(_ context.Context, prompt Prompt) (bool, error) {
		if answer == nil {
			return false, &ConfirmationError{Prompt: prompt}
		}
		return *answer, nil
	})
}

// Always answers every prompt with yes.
var Always Confirmer = ConfirmFunc(func(context.Context, Prompt) (bool, error) { return true, nil })
