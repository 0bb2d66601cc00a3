package paramstore

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/stretchr/testify/require"
)

// fakeAPI records the requested name and replies with a canned output.
type fakeAPI struct {
	out      *ssm.GetParameterOutput
	err      error
	lastName string
	decrypt  bool
}

func (f *fakeAPI) GetParameter(_ context.Context, in *ssm.GetParameterInput, _ ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
	f.lastName = aws.ToString(in.Name)
	f.decrypt = aws.ToBool(in.WithDecryption)
	return f.out, f.err
}

func valueOutput(v string) *ssm.GetParameterOutput {
	return &ssm.GetParameterOutput{Parameter: &types.Parameter{
		Name:  aws.String("p"),
		Value: aws.String(v),
		Type:  types.ParameterTypeSecureString,
	}}
}

func TestNew_NilAPI(t *testing.T) {
	_, err := New(nil, "/bot")
	require.Error(t, err)
	require.Contains(t, err.Error(), "must not be nil")
}

func TestPath(t *testing.T) {
	cases := []struct {
		prefix, key, want string
	}{
		{"/consignado-bot", "zapi-token", "/consignado-bot/zapi-token"},
		{"/consignado-bot/", "/session-secret", "/consignado-bot/session-secret"},
		{"", "session-secret", "/session-secret"},
	}
	for _, tc := range cases {
		c, err := New(&fakeAPI{}, tc.prefix)
		require.NoError(t, err)
		require.Equal(t, tc.want, c.Path(tc.key), "prefix=%q key=%q", tc.prefix, tc.key)
	}
}

func TestLookup_UsesPrefixAndDecryption(t *testing.T) {
	api := &fakeAPI{out: valueOutput("s3cr3t")}
	c, err := New(api, "/consignado-bot")
	require.NoError(t, err)

	v, err := c.Lookup(context.Background(), "session-secret")
	require.NoError(t, err)
	require.Equal(t, "s3cr3t", v)
	require.Equal(t, "/consignado-bot/session-secret", api.lastName)
	require.True(t, api.decrypt)
}

func TestLookup_EmptyKey(t *testing.T) {
	c, err := New(&fakeAPI{}, "/bot")
	require.NoError(t, err)
	_, err = c.Lookup(context.Background(), " / ")
	require.ErrorContains(t, err, "required")
}

func TestGetParameter_MissingValue(t *testing.T) {
	api := &fakeAPI{out: &ssm.GetParameterOutput{Parameter: &types.Parameter{Name: aws.String("p")}}}
	c, err := New(api, "")
	require.NoError(t, err)
	_, err = c.GetParameter(context.Background(), "p")
	require.ErrorContains(t, err, "missing value")
}

func TestGetParameter_NotFound(t *testing.T) {
	api := &fakeAPI{err: &types.ParameterNotFound{Message: aws.String("nope")}}
	c, err := New(api, "")
	require.NoError(t, err)
	_, err = c.GetParameter(context.Background(), "/bot/zapi-token")
	require.ErrorIs(t, err, ErrNotFound)
	require.Contains(t, err.Error(), "/bot/zapi-token")
}

func TestGetParameter_APIError(t *testing.T) {
	c, err := New(&fakeAPI{err: errors.New("boom")}, "")
	require.NoError(t, err)
	_, err = c.GetParameter(context.Background(), "p")
	require.ErrorContains(t, err, "boom")
}

func TestGetParameter_ClientNotInitialized(t *testing.T) {
	_, err := (&Client{}).GetParameter(context.Background(), "p")
	require.ErrorContains(t, err, "not initialized")
}

func TestGetParameter_EmptyName(t *testing.T) {
	c, err := New(&fakeAPI{}, "")
	require.NoError(t, err)
	_, err = c.GetParameter(context.Background(), "  ")
	require.ErrorContains(t, err, "required")
}
