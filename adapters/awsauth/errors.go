package awsauth

import (
	"errors"

	"github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"

	"github.com/aurelia-labs/voicekit/domain/repositories"
)

// StatusError converts AWS SDK service errors into APIStatusError, keeping
// the service error code in the message. Other errors pass through as-is.
func StatusError(err error) error {
	if err == nil {
		return nil
	}
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return err
	}

	se := &repositories.APIStatusError{
		Message: apiErr.ErrorCode() + ": " + apiErr.ErrorMessage(),
	}
	var re *smithyhttp.ResponseError
	if errors.As(err, &re) {
		se.StatusCode = re.HTTPStatusCode()
	}
	return se
}
