package call

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRender(t *testing.T) {
	tests := []struct {
		name       string
		session    Session
		configured bool
		want       View
	}{
		{
			name:       "idle",
			configured: true,
			want:       View{Icon: IconIdle, StatusKind: StatusIdle, Status: EnglishMessages.Idle, Interactive: true},
		},
		{
			name:       "in call",
			session:    Session{Active: true},
			configured: true,
			want:       View{Icon: IconActive, StatusKind: StatusInCall, Status: EnglishMessages.InCall, Active: true, Interactive: true},
		},
		{
			name:       "start failure",
			session:    Session{LastError: &Error{Kind: KindCredentialRequestFailed, Status: 500}},
			configured: true,
			want: View{Icon: IconIdle, StatusKind: StatusError, Status: EnglishMessages.StartFailed,
				ErrorKind: KindCredentialRequestFailed, Interactive: true},
		},
		{
			name:       "runtime error",
			session:    Session{LastError: &Error{Kind: KindTransportRuntimeError}},
			configured: true,
			want: View{Icon: IconIdle, StatusKind: StatusError, Status: EnglishMessages.RuntimeError,
				ErrorKind: KindTransportRuntimeError, Interactive: true},
		},
		{
			name:    "not configured",
			session: Session{Active: true},
			want: View{Icon: IconIdle, StatusKind: StatusConfigRequired, Status: EnglishMessages.ConfigurationRequired,
				ErrorKind: KindConfigurationMissing},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Render(tt.session, tt.configured, EnglishMessages))
		})
	}
}

func TestRenderIsPure(t *testing.T) {
	s := Session{LastError: &Error{Kind: KindTransportStartFailed}}
	first := Render(s, true, GermanMessages)
	for i := 0; i < 3; i++ {
		assert.Equal(t, first, Render(s, true, GermanMessages))
	}
}

func TestMessagesFor(t *testing.T) {
	assert.Equal(t, GermanMessages, MessagesFor("de"))
	assert.Equal(t, EnglishMessages, MessagesFor("en"))
	assert.Equal(t, EnglishMessages, MessagesFor("xx"))
}

func TestErrorFormattingAndMatching(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	err := fmt.Errorf("start: %w", &Error{Kind: KindCredentialRequestFailed, Err: cause})

	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, err, &Error{Kind: KindCredentialRequestFailed})
	assert.NotErrorIs(t, err, &Error{Kind: KindCredentialMissing})
	assert.Equal(t, KindCredentialRequestFailed, KindOf(err))
	assert.Equal(t, ErrorKind(""), KindOf(cause))

	assert.Equal(t, "credential_request_failed (status 500)", (&Error{Kind: KindCredentialRequestFailed, Status: 500}).Error())
	assert.Equal(t, "transport_runtime_error: lost", (&Error{Kind: KindTransportRuntimeError, Message: "lost"}).Error())
}
