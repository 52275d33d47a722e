package onboarding

import "errors"

// PINLength is the number of digits in a PIN.
const PINLength = 6

// Step is a position in the onboarding flow.
type Step string

const (
	StepCreatePIN  Step = "create-pin"
	StepConfirmPIN Step = "confirm-pin"
	StepPasskey    Step = "passkey"
)

var (
	// ErrPinMismatch is set when the confirmation differs from the PIN.
	ErrPinMismatch = errors.New("PINs don't match. Please try again.")

	// ErrPINRejected is set when the users service answers success=false.
	ErrPINRejected = errors.New("failed to save PIN")

	// ErrSetPINFailed is set when the Set-PIN call itself fails.
	ErrSetPINFailed = errors.New("could not reach PIN service")

	// ErrCeremonyFailed is set when the passkey ceremony fails or is
	// abandoned. The user may retry or skip.
	ErrCeremonyFailed = errors.New("passkey ceremony failed")
)

// Feedback tells the presentation layer how to acknowledge an input.
type Feedback string

const (
	FeedbackNone    Feedback = ""
	FeedbackTap     Feedback = "tap"
	FeedbackWarning Feedback = "warning"
	FeedbackError   Feedback = "error"
	FeedbackSuccess Feedback = "success"
)

// Snapshot is the observable state of the flow.
type Snapshot struct {
	Step      Step
	PIN       string
	Confirm   string
	Err       error
	Busy      bool
	Completed bool
	Feedback  Feedback
}

// InputKind enumerates what can be fed into Transition.
type InputKind int

const (
	InputDigit InputKind = iota
	InputDelete
	InputCancel
	InputPINResult
	InputCreatePasskey
	InputSkipPasskey
	InputPasskeyResult
)

// Input is one event. Digit is used by InputDigit, Err by the result kinds.
type Input struct {
	Kind  InputKind
	Digit rune
	Err   error
}

// Effect is work the machine must perform after a transition. Every effect
// leaves the snapshot busy until its result input is applied.
type Effect int

const (
	EffectNone Effect = iota
	EffectSubmitPIN
	EffectCreatePasskey
	EffectSkipPasskey
)

// Transition is the pure transition function of the onboarding flow.
func Transition(s Snapshot, in Input) (Snapshot, Effect) {
	s.Feedback = FeedbackNone
	if s.Completed {
		return s, EffectNone
	}

	switch in.Kind {
	case InputPINResult:
		return pinResult(s, in.Err), EffectNone
	case InputPasskeyResult:
		return passkeyResult(s, in.Err), EffectNone
	}

	if s.Busy {
		return s, EffectNone
	}

	switch in.Kind {
	case InputDigit:
		return digit(s, in.Digit)
	case InputDelete:
		return backspace(s), EffectNone
	case InputCancel:
		if s.Step == StepPasskey {
			s.Feedback = FeedbackWarning
			return s, EffectNone
		}
		return Snapshot{Step: StepCreatePIN, Feedback: FeedbackTap}, EffectNone
	case InputCreatePasskey, InputSkipPasskey:
		if s.Step != StepPasskey {
			s.Feedback = FeedbackWarning
			return s, EffectNone
		}
		s.Busy = true
		s.Err = nil
		if in.Kind == InputCreatePasskey {
			return s, EffectCreatePasskey
		}
		return s, EffectSkipPasskey
	}
	return s, EffectNone
}

func digit(s Snapshot, d rune) (Snapshot, Effect) {
	if d < '0' || d > '9' {
		s.Feedback = FeedbackWarning
		return s, EffectNone
	}

	switch s.Step {
	case StepCreatePIN:
		if len(s.PIN) >= PINLength {
			s.Feedback = FeedbackWarning
			return s, EffectNone
		}
		s.PIN += string(d)
		s.Feedback = FeedbackTap
		if len(s.PIN) == PINLength {
			s.Step = StepConfirmPIN
			s.Confirm = ""
			s.Err = nil
		}
		return s, EffectNone

	case StepConfirmPIN:
		if len(s.Confirm) >= PINLength {
			s.Feedback = FeedbackWarning
			return s, EffectNone
		}
		s.Confirm += string(d)
		s.Feedback = FeedbackTap
		if len(s.Confirm) < PINLength {
			return s, EffectNone
		}
		if s.Confirm != s.PIN {
			s.Confirm = ""
			s.Err = ErrPinMismatch
			s.Feedback = FeedbackError
			return s, EffectNone
		}
		s.Busy = true
		s.Err = nil
		return s, EffectSubmitPIN
	}

	s.Feedback = FeedbackWarning
	return s, EffectNone
}

func backspace(s Snapshot) Snapshot {
	switch s.Step {
	case StepCreatePIN:
		if s.PIN == "" {
			s.Feedback = FeedbackWarning
			return s
		}
		s.PIN = s.PIN[:len(s.PIN)-1]
	case StepConfirmPIN:
		if s.Confirm == "" {
			s.Feedback = FeedbackWarning
			return s
		}
		s.Confirm = s.Confirm[:len(s.Confirm)-1]
	default:
		s.Feedback = FeedbackWarning
		return s
	}
	s.Feedback = FeedbackTap
	return s
}

func pinResult(s Snapshot, err error) Snapshot {
	if !s.Busy || s.Step != StepConfirmPIN {
		return s
	}
	s.Busy = false
	if err != nil {
		s.Confirm = ""
		s.Err = err
		s.Feedback = FeedbackError
		return s
	}
	s.Step = StepPasskey
	s.PIN = ""
	s.Confirm = ""
	s.Err = nil
	s.Feedback = FeedbackSuccess
	return s
}

func passkeyResult(s Snapshot, err error) Snapshot {
	if !s.Busy || s.Step != StepPasskey {
		return s
	}
	s.Busy = false
	if err != nil {
		s.Err = err
		s.Feedback = FeedbackError
		return s
	}
	s.Err = nil
	s.Completed = true
	s.Feedback = FeedbackSuccess
	return s
}
