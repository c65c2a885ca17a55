// Package nats binds the draw service to the lottery message bus.
package nats

import (
	"encoding/json"
	"fmt"

	"github.com/lottoworks/drawstack/common/messaging"
	"github.com/lottoworks/drawstack/draw/pkg/model"
)

// decode unmarshals a feed payload. A payload that is not valid JSON for v
// can never be applied, so the error is a validation failure.
func decode(msg *messaging.Message, v any) error {
	if len(msg.Data) == 0 {
		return fmt.Errorf("%w: empty payload on %s", model.ErrValidation, msg.Subject)
	}
	if err := json.Unmarshal(msg.Data, v); err != nil {
		return fmt.Errorf("%w: decode %s: %v", model.ErrValidation, msg.Subject, err)
	}
	return nil
}
