package server

import (
	"encoding/json"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/require"

	"github.com/fathima-sithara/realtime-service/pkg/apperrors"
)

func TestFailTranslatesAppErrors(t *testing.T) {
	r := fail("chat:send-message", apperrors.ErrNotMessageSender)
	require.False(t, r.Success)
	require.Equal(t, apperrors.CodePermissionDenied, r.Error.Code)
	require.NotEmpty(t, r.Error.Message)
}

func TestFailCollapsesUnknownErrorsToInternal(t *testing.T) {
	r := fail("chat:send-message", json.Unmarshal([]byte("{"), &struct{}{}))
	require.Equal(t, apperrors.CodeInternal, r.Error.Code)
	// The raw error text must not leak to the client.
	require.Equal(t, "internal error", r.Error.Message)
}

func TestOkCarriesPayload(t *testing.T) {
	r := ok("group:list", []string{"a"})
	require.True(t, r.Success)
	require.Nil(t, r.Error)

	b, err := json.Marshal(r)
	require.NoError(t, err)
	require.JSONEq(t, `{"event":"group:list","success":true,"data":["a"]}`, string(b))
}

func TestBindValidatesPayloads(t *testing.T) {
	d := &Dispatcher{validate: validator.New()}

	var p chatSendPayload
	err := d.bind(json.RawMessage(`{"receiver_id":2,"content":"hi"}`), &p)
	require.NoError(t, err)
	require.Equal(t, int64(2), p.ReceiverID)

	err = d.bind(json.RawMessage(`{"content":"hi"}`), &chatSendPayload{})
	require.True(t, apperrors.IsCode(err, apperrors.CodeInvalidArgument))

	err = d.bind(json.RawMessage(`{`), &chatSendPayload{})
	require.True(t, apperrors.IsCode(err, apperrors.CodeInvalidArgument))

	err = d.bind(nil, &chatSendPayload{})
	require.True(t, apperrors.IsCode(err, apperrors.CodeInvalidArgument))
}
