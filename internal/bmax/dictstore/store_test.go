package dictstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClient struct {
	data     map[string][]byte
	ttls     map[string]time.Duration
	failSets int
	getErr   error
}

func newFakeClient() *fakeClient {
	return &fakeClient{data: make(map[string][]byte), ttls: make(map[string]time.Duration)}
}

func (f *fakeClient) GetBytes(_ context.Context, key string) ([]byte, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	v, ok := f.data[key]
	if !ok {
		return nil, redis.Nil
	}
	return v, nil
}

func (f *fakeClient) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	if f.failSets > 0 {
		f.failSets--
		return errors.New("connection reset")
	}
	f.data[key] = value.([]byte)
	f.ttls[key] = ttl
	return nil
}

func TestSnapshotRoundTrip(t *testing.T) {
	client := newFakeClient()
	s := New(client, time.Hour)
	ctx := context.Background()

	data, err := s.LoadSnapshot(ctx, "title", 3)
	require.NoError(t, err)
	assert.Nil(t, data)

	require.NoError(t, s.SaveSnapshot(ctx, "title", 3, []byte{1, 2, 3}))
	assert.Equal(t, time.Hour, client.ttls["bmax:dict:3:title"])

	data, err = s.LoadSnapshot(ctx, "title", 3)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, data)

	data, err = s.LoadSnapshot(ctx, "title", 4)
	require.NoError(t, err)
	assert.Nil(t, data)
}

func TestSaveSnapshotRetries(t *testing.T) {
	client := newFakeClient()
	client.failSets = 2
	s := New(client, time.Minute)

	require.NoError(t, s.SaveSnapshot(context.Background(), "body", 1, []byte("fst")))
	assert.Equal(t, []byte("fst"), client.data[Key("body", 1)])
}

func TestLoadSnapshotReportsErrors(t *testing.T) {
	client := newFakeClient()
	client.getErr = errors.New("timeout")
	_, err := New(client, time.Minute).LoadSnapshot(context.Background(), "body", 1)
	assert.Error(t, err)
}
