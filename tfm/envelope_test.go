package tfm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseEnvelopeFailureMessagePrecedence(t *testing.T) {
	t.Parallel()

	var apiErr *APIError

	_, err := parseEnvelope([]byte(`{"success":false,"error":"boom","message":"ignored"}`))
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, "boom", apiErr.Message)

	_, err = parseEnvelope([]byte(`{"success":false,"message":"fallback"}`))
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, "fallback", apiErr.Message)

	_, err = parseEnvelope([]byte(`{"success":false}`))
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, "unknown API error", apiErr.Message)
}

func TestParseEnvelopeMalformedBody(t *testing.T) {
	t.Parallel()

	var apiErr *APIError
	_, err := parseEnvelope([]byte(`<html>oops</html>`))
	require.ErrorAs(t, err, &apiErr)
}

func TestEnvelopeItemsShapes(t *testing.T) {
	t.Parallel()

	env, err := parseEnvelope([]byte(`{"success":true,"data":[{"id":"1"},{"id":"2"}]}`))
	require.NoError(t, err)
	require.Len(t, env.items(), 2)

	env, err = parseEnvelope([]byte(`{"success":true,"data":{"items":[{"id":"1"}]}}`))
	require.NoError(t, err)
	require.Len(t, env.items(), 1)

	env, err = parseEnvelope([]byte(`{"success":true,"data":{"total":0}}`))
	require.NoError(t, err)
	require.Empty(t, env.items())

	env, err = parseEnvelope([]byte(`{"success":true}`))
	require.NoError(t, err)
	require.Empty(t, env.items())
}

func TestEnvelopePaginationDefaults(t *testing.T) {
	t.Parallel()

	env, err := parseEnvelope([]byte(`{"success":true,"data":[]}`))
	require.NoError(t, err)
	pg := env.pagination()
	require.Equal(t, 1, pg.Page)
	require.Equal(t, defaultPageSize, pg.PageSize)
	require.Equal(t, 1, pg.TotalPages)
	require.False(t, pg.HasNext)
}

func TestEnvelopePaginationTotalPagesFallback(t *testing.T) {
	t.Parallel()

	env, err := parseEnvelope([]byte(`{"success":true,"data":[],"pagination":{"page":2,"pageSize":50,"totalItems":120,"hasNext":true}}`))
	require.NoError(t, err)
	pg := env.pagination()
	require.Equal(t, 2, pg.Page)
	require.Equal(t, 50, pg.PageSize)
	require.Equal(t, 3, pg.TotalPages)
	require.True(t, pg.HasNext)
}

func TestParseEntryLenientDates(t *testing.T) {
	t.Parallel()

	entry, err := parseEntry([]byte(`{"id":"7","name":"a.flac","dateCreated":"2024-06-01T10:00:00Z","dateModified":"not-a-date"}`))
	require.NoError(t, err)
	require.Equal(t, "7", entry.ID)
	require.False(t, entry.DateCreated.IsZero())
	require.True(t, entry.DateModified.IsZero())
}
