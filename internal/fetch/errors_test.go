package fetch

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewError_PromotesDeadlineToTimeout(t *testing.T) {
	err := NewError(KindNetwork, OpNavigation, "https://x/level", context.DeadlineExceeded)

	assert.Equal(t, KindTimeout, err.Kind)
	assert.Contains(t, err.Error(), "navigation timed out for https://x/level")
}

func TestError_TimeoutMessagesAreDistinguishable(t *testing.T) {
	msgs := map[string]bool{}
	for _, op := range []string{OpSessionAcquisition, OpNavigation, OpBatchFetch} {
		msgs[NewError(KindTimeout, op, "", nil).Error()] = true
	}
	assert.Len(t, msgs, 3)
}

func TestKindOf(t *testing.T) {
	wrapped := fmt.Errorf("outer: %w", &Error{Kind: KindBadCredentials, Op: OpLogin})

	assert.Equal(t, KindBadCredentials, KindOf(wrapped))
	assert.Equal(t, KindTimeout, KindOf(context.DeadlineExceeded))
	assert.Equal(t, KindUnknown, KindOf(errors.New("boom")))
}
