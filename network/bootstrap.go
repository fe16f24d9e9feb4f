package network

import (
	"context"
	"errors"
	"fmt"
	"time"

	"reportixi/models"
)

// DefaultBootstrapTimeout bounds the wait for the RCS to answer a metadata
// announcement.
const DefaultBootstrapTimeout = 30 * time.Second

// ErrBootstrapTimeout indicates the RCS did not answer with a UUID in time.
var ErrBootstrapTimeout = errors.New("network: timed out waiting for uuid from RCS")

// Bootstrap announces metadata to the RCS and waits for the UuidPayload the
// receiver delivers to identity. The waiter is registered before sending so a
// fast answer cannot be missed.
func Bootstrap(ctx context.Context, sender *Sender, identity *models.Identity, rcs models.Address, metadata MetadataPayload, timeout time.Duration) (string, error) {
	if timeout <= 0 {
		timeout = DefaultBootstrapTimeout
	}

	answer, cancel := identity.Expect()
	defer cancel()

	if err := sender.SendTo(metadata, rcs); err != nil {
		return "", fmt.Errorf("announce metadata to RCS: %w", err)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case uuid := <-answer:
		return uuid, nil
	case <-timer.C:
		return "", ErrBootstrapTimeout
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
