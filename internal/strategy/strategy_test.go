package strategy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gitcollab/core/internal/config"
)

func TestParseOverrideAcceptsCamelAndSnakeAliases(t *testing.T) {
	camel, err := ParseOverride([]byte(`{"retry":{"baseMs":500}}`))
	require.NoError(t, err)
	snake, err := ParseOverride([]byte(`{"retry":{"base_ms":500}}`))
	require.NoError(t, err)
	require.NotNil(t, camel.Retry)
	require.NotNil(t, snake.Retry)
	assert.Equal(t, *camel.Retry.BaseMs, *snake.Retry.BaseMs)
}

func TestParseOverrideNilOrEmptyMeansNoOverride(t *testing.T) {
	o, err := ParseOverride(nil)
	require.NoError(t, err)
	assert.Nil(t, o.HTTP)
	assert.Nil(t, o.TLS)
	assert.Nil(t, o.Retry)

	o2, err := ParseOverride([]byte("null"))
	require.NoError(t, err)
	assert.Nil(t, o2.Retry)
}

func TestParseOverrideUnknownFieldsAreIgnoredNotRejected(t *testing.T) {
	o, err := ParseOverride([]byte(`{"retry":{"max":3},"bogus":true,"retry":{"max":3,"weird":1}}`))
	require.NoError(t, err)
	require.NotNil(t, o.Retry)
	assert.Equal(t, 3, *o.Retry.Max)
	assert.Contains(t, o.Ignored, "weird")
}

func TestParseOverrideRejectsOutOfRangeValues(t *testing.T) {
	_, err := ParseOverride([]byte(`{"retry":{"max":0}}`))
	assert.Error(t, err)
	_, err = ParseOverride([]byte(`{"retry":{"max":21}}`))
	assert.Error(t, err)
	_, err = ParseOverride([]byte(`{"http":{"maxRedirects":21}}`))
	assert.Error(t, err)
}

func TestApplyOverrideMergesAndDiffsChangedFields(t *testing.T) {
	base := config.DefaultConfig()
	o, err := ParseOverride([]byte(`{"retry":{"max":10},"http":{"followRedirects":false}}`))
	require.NoError(t, err)

	eff, err := ApplyOverride("task-1", base, o, nil)
	require.NoError(t, err)
	assert.Equal(t, 10, eff.Retry.Max)
	assert.False(t, eff.HTTP.FollowRedirects)
	assert.Contains(t, eff.Changed, "retry.max")
	assert.Contains(t, eff.Changed, "http.followRedirects")
}

func TestApplyOverrideRejectsInsecureSkipVerifyWithSPKIPins(t *testing.T) {
	base := config.DefaultConfig()
	base.TLS.SPKIPins = []string{"sha256/abc"}
	o, err := ParseOverride([]byte(`{"tls":{"insecureSkipVerify":true}}`))
	require.NoError(t, err)

	_, err = ApplyOverride("task-1", base, o, nil)
	assert.Error(t, err)
}

func TestParseDepthFilterBoundaries(t *testing.T) {
	var zero int32 = 0
	_, err := ParseDepthFilter(&zero, "")
	assert.Error(t, err)

	var neg int32 = -1
	_, err = ParseDepthFilter(&neg, "")
	assert.Error(t, err)

	var max int32 = 2147483647
	df, err := ParseDepthFilter(&max, "")
	require.NoError(t, err)
	assert.Equal(t, max, df.Depth)
}

func TestParseDepthFilterAcceptsKnownFiltersAndRejectsOthers(t *testing.T) {
	df, err := ParseDepthFilter(nil, "  blob:none  ")
	require.NoError(t, err)
	assert.Equal(t, "blob:none", df.Filter)

	df2, err := ParseDepthFilter(nil, "   ")
	require.NoError(t, err)
	assert.Equal(t, "", df2.Filter)

	_, err = ParseDepthFilter(nil, "tree:1")
	assert.Error(t, err)
}

func TestResolvePartialFilterFallsBackToShallow(t *testing.T) {
	cap := ResolvePartialFilter("blob:none", nil)
	assert.False(t, cap.Supported)
	assert.True(t, cap.FallbackShallow)

	cap2 := ResolvePartialFilter("", nil)
	assert.True(t, cap2.Supported)
}
