package call

// IconVariant selects the affordance shown on the call button
type IconVariant string

const (
	IconIdle   IconVariant = "idle"   // microphone: click to start
	IconActive IconVariant = "active" // crossed microphone: click to stop
)

// StatusKind classifies the status text
type StatusKind string

const (
	StatusIdle           StatusKind = "idle"
	StatusInCall         StatusKind = "in_call"
	StatusError          StatusKind = "error"
	StatusConfigRequired StatusKind = "config_required"
)

// View is what the UI shows. It is derived from Session and never stored.
type View struct {
	Icon       IconVariant `json:"icon"`
	StatusKind StatusKind  `json:"status_kind"`
	Status     string      `json:"status"`
	Active     bool        `json:"active"`
	ErrorKind  ErrorKind   `json:"error_kind,omitempty"`
	// Interactive is false when the widget shows the configuration message
	// instead of the call control
	Interactive bool `json:"interactive"`
}

// Messages is the user facing copy
type Messages struct {
	Idle                  string
	InCall                string
	StartFailed           string
	RuntimeError          string
	ConfigurationRequired string
	ButtonLabel           string
}

// EnglishMessages is the default copy
var EnglishMessages = Messages{
	Idle:                  "Click here to start a call.",
	InCall:                "Call in progress... click to stop.",
	StartFailed:           "Failed to start the call. Please try again.",
	RuntimeError:          "An error occurred. Please try again.",
	ConfigurationRequired: "Please configure the voice agent in the settings.",
	ButtonLabel:           "Start/stop voice chat",
}

// GermanMessages is the German copy of the widget
var GermanMessages = Messages{
	Idle:                  "Klicken Sie hier, um einen Anruf zu starten.",
	InCall:                "Anruf läuft... zum Stoppen klicken.",
	StartFailed:           "Fehler beim Starten des Anrufs. Bitte versuchen Sie es erneut.",
	RuntimeError:          "Ein Fehler ist aufgetreten. Bitte versuchen Sie es erneut.",
	ConfigurationRequired: "Bitte konfigurieren Sie den Voice Agent in den Einstellungen.",
	ButtonLabel:           "Voice Chat starten/stoppen",
}

// MessagesFor returns the copy for a locale, falling back to English
func MessagesFor(locale string) Messages {
	if locale == "de" {
		return GermanMessages
	}
	return EnglishMessages
}

// ErrorText maps an error annotation to its status message
func (m Messages) ErrorText(err *Error) string {
	switch err.Kind {
	case KindConfigurationMissing:
		return m.ConfigurationRequired
	case KindTransportRuntimeError:
		return m.RuntimeError
	default:
		return m.StartFailed
	}
}

// Render computes the view for a session. An error annotation always wins over
// the idle and in-call text; only transitions that clear LastError bring those
// back, so a bare refresh after an error keeps the error visible.
func Render(s Session, configured bool, msgs Messages) View {
	if !configured {
		return View{
			Icon:       IconIdle,
			StatusKind: StatusConfigRequired,
			Status:     msgs.ConfigurationRequired,
			ErrorKind:  KindConfigurationMissing,
		}
	}

	v := View{
		Icon:        IconIdle,
		StatusKind:  StatusIdle,
		Status:      msgs.Idle,
		Active:      s.Active,
		Interactive: true,
	}
	if s.Active {
		v.Icon = IconActive
		v.StatusKind = StatusInCall
		v.Status = msgs.InCall
	}
	if s.LastError != nil {
		v.StatusKind = StatusError
		v.Status = msgs.ErrorText(s.LastError)
		v.ErrorKind = s.LastError.Kind
	}
	return v
}
