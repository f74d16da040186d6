package domain

import "errors"

// Terminal pipeline errors. Messages are the user-facing Vietnamese strings;
// internal detail stays in wrapped causes and log lines.
var (
	// ErrNoURLFound means the input text contained no http(s) URL at all.
	ErrNoURLFound = errors.New("Không tìm thấy đường dẫn hợp lệ trong nội dung đã dán.")

	// ErrUnresolvableLink means the redirect chain was exhausted without an
	// extractable content identifier.
	ErrUnresolvableLink = errors.New("Không thể nhận diện video từ link này. Hãy đảm bảo link hợp lệ.")

	// ErrNoPlayableURL means a strategy payload carried no usable media URL.
	ErrNoPlayableURL = errors.New("Không lấy được link phát video.")
)

// WithMessage keeps a sentinel's identity for errors.Is checks while
// replacing the user-facing message, for platform-specific phrasings of the
// same failure class.
func WithMessage(sentinel error, message string) error {
	return &localizedError{sentinel: sentinel, message: message}
}

type localizedError struct {
	sentinel error
	message  string
}

func (e *localizedError) Error() string { return e.message }

func (e *localizedError) Unwrap() error { return e.sentinel }
