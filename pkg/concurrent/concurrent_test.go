package concurrent

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGroupFirstErrorWinsAndCancels(t *testing.T) {
	boom := errors.New("boom")
	g, ctx := WithContext(context.Background())

	g.Go(func(ctx context.Context) error {
		return boom
	})
	g.Go(func(ctx context.Context) error {
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(5 * time.Second):
			return errors.New("sibling was not canceled")
		}
	})

	err := g.Wait()
	require.ErrorIs(t, err, boom)
	assert.Error(t, ctx.Err(), "group context should be canceled after failure")
}

func TestRunWaitsForAll(t *testing.T) {
	done := make(chan struct{}, 2)
	err := Run(context.Background(),
		func(ctx context.Context) error {
			done <- struct{}{}
			return nil
		},
		func(ctx context.Context) error {
			done <- struct{}{}
			return nil
		},
	)
	require.NoError(t, err)
	assert.Len(t, done, 2)
}

func TestGroupParentCancellation(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())
	g, _ := WithContext(parent)

	g.Go(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	cancel()
	err := g.Wait()
	assert.ErrorIs(t, err, context.Canceled)
}
