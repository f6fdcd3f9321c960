package s3client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"
	"github.com/stretchr/testify/assert"
)

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{
			name: "slow down",
			err:  &smithy.GenericAPIError{Code: "SlowDown"},
			want: true,
		},
		{
			name: "internal error",
			err:  fmt.Errorf("wrapped: %w", &smithy.GenericAPIError{Code: "InternalError"}),
			want: true,
		},
		{
			name: "no such bucket",
			err:  &smithy.GenericAPIError{Code: "NoSuchBucket"},
			want: false,
		},
		{
			name: "server error response",
			err: &smithyhttp.ResponseError{
				Response: &smithyhttp.Response{Response: &http.Response{StatusCode: http.StatusBadGateway}},
				Err:      errors.New("bad gateway"),
			},
			want: true,
		},
		{
			name: "forbidden response",
			err: &smithyhttp.ResponseError{
				Response: &smithyhttp.Response{Response: &http.Response{StatusCode: http.StatusForbidden}},
				Err:      errors.New("forbidden"),
			},
			want: false,
		},
		{
			name: "unexpected eof",
			err:  fmt.Errorf("read body: %w", io.ErrUnexpectedEOF),
			want: true,
		},
		{
			name: "plain error",
			err:  errors.New("boom"),
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isRetryableError(tt.err))
		})
	}
}

func TestRetryPolicyDo(t *testing.T) {
	policy := RetryPolicy{MaxRetries: 3, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}

	t.Run("succeeds after transient failures", func(t *testing.T) {
		calls := 0
		err := policy.Do(context.Background(), func() error {
			calls++
			if calls < 3 {
				return &smithy.GenericAPIError{Code: "SlowDown"}
			}
			return nil
		})
		assert.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("gives up after max retries", func(t *testing.T) {
		calls := 0
		err := policy.Do(context.Background(), func() error {
			calls++
			return &smithy.GenericAPIError{Code: "ServiceUnavailable"}
		})
		assert.Error(t, err)
		assert.Equal(t, 4, calls)
	})

	t.Run("does not retry permanent errors", func(t *testing.T) {
		calls := 0
		err := policy.Do(context.Background(), func() error {
			calls++
			return &smithy.GenericAPIError{Code: "AccessDenied"}
		})
		assert.Error(t, err)
		assert.Equal(t, 1, calls)
	})

	t.Run("stops when the context is cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		slow := RetryPolicy{MaxRetries: 3, BaseDelay: time.Hour, MaxDelay: time.Hour}
		err := slow.Do(ctx, func() error {
			return &smithy.GenericAPIError{Code: "SlowDown"}
		})
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestRetryPolicyDelayIsCapped(t *testing.T) {
	policy := RetryPolicy{MaxRetries: 10, BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second}
	for attempt := 0; attempt < 10; attempt++ {
		d := policy.delay(attempt)
		assert.LessOrEqual(t, d, time.Second)
		assert.Greater(t, d, time.Duration(0))
	}
}

func TestStoreUnavailableError(t *testing.T) {
	cause := errors.New("dial tcp: no route to host")
	err := fmt.Errorf("listing: %w", &StoreUnavailableError{Op: "list", Bucket: "noaa-goes16", Key: "ABI-L1b-RadF/2020/103/", Err: cause})

	assert.True(t, IsStoreUnavailable(err))
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "s3://noaa-goes16/ABI-L1b-RadF/2020/103/")
	assert.False(t, IsStoreUnavailable(cause))
}

func TestNewAWSClientRetryPolicy(t *testing.T) {
	cfg := aws.Config{Region: DefaultRegion, Credentials: aws.AnonymousCredentials{}}

	c := NewAWSClient(cfg, RetryPolicy{})
	assert.Equal(t, DefaultRetryPolicy(), c.retry)

	custom := RetryPolicy{MaxRetries: 1, BaseDelay: time.Millisecond, MaxDelay: time.Second}
	c = NewAWSClient(cfg, custom)
	assert.Equal(t, custom, c.retry)
}
