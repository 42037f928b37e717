package chatclient

import (
	"errors"
	"fmt"
)

// FailureNote is the text shown in place of the assistant's reply when an
// exchange fails.
func FailureNote(err error, model string) string {
	if errors.Is(err, ErrEmptyResponse) {
		return "The model returned an empty response. Try again or pick another model."
	}
	return fmt.Sprintf("Sorry, something went wrong: %v. Make sure Ollama is running and model %s is installed.", err, model)
}
