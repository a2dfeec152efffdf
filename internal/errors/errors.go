// Package errors defines the typed failures surfaced by credential loading
// and lineage updates. Every one of them aborts the running command with a
// single-line diagnostic; password retry loops are the only place a failure
// is absorbed, and exhaustion re-surfaces the last concrete cause so a wrong
// password stays distinguishable from a corrupt store.
package errors

import "fmt"

// ConfigError reports conflicting or missing signer configuration: both
// credential sources set, neither set, a malformed option value, or an
// invalid profile document. It is the parameter-error class.
type ConfigError struct {
	Message string
}

func (e ConfigError) Error() string {
	return e.Message
}

// Configf builds a ConfigError from a format string.
func Configf(format string, args ...interface{}) ConfigError {
	return ConfigError{Message: fmt.Sprintf(format, args...)}
}

// UnsupportedEncodingError reports a password encoding name that no known
// character encoding matches.
type UnsupportedEncodingError struct {
	Name string
}

func (e UnsupportedEncodingError) Error() string {
	return fmt.Sprintf("unsupported password character encoding: %s", e.Name)
}

// ProviderError reports that a keystore provider could not be resolved or
// instantiated.
type ProviderError struct {
	Provider string
	Op       string
	Err      error
}

func (e ProviderError) Error() string {
	msg := fmt.Sprintf("keystore provider %q: %s", e.Provider, e.Op)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e ProviderError) Unwrap() error {
	return e.Err
}

// PasswordExhaustedError reports that every candidate password was tried
// without success. Err carries the last concrete failure and the message is
// transparent to it; a nil Err means the candidate set was empty and no
// password was ever attempted.
type PasswordExhaustedError struct {
	Source string // plural noun, e.g. "keystore passwords"
	Err    error
}

func (e PasswordExhaustedError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return "No " + e.Source
}

func (e PasswordExhaustedError) Unwrap() error {
	return e.Err
}

// AliasNotFoundError reports that the named alias is not a key entry, or
// (with an empty Alias) that the store holds no key entries at all.
type AliasNotFoundError struct {
	Store string
	Alias string
}

func (e AliasNotFoundError) Error() string {
	if e.Alias == "" {
		return fmt.Sprintf("%s does not contain key entries", e.Store)
	}
	return fmt.Sprintf("%s entry %q does not contain a key", e.Store, e.Alias)
}

// AmbiguousAliasError reports a store with several key entries and no
// explicit alias to pick one.
type AmbiguousAliasError struct {
	Store string
}

func (e AmbiguousAliasError) Error() string {
	return fmt.Sprintf("%s contains multiple key entries. --ks-key-alias option must be used to specify which entry to use", e.Store)
}

// NoCertificatesError reports an entry or file that yielded no certificates.
type NoCertificatesError struct {
	Source string
}

func (e NoCertificatesError) Error() string {
	return fmt.Sprintf("%s does not contain certificates", e.Source)
}

// UnsupportedKeyAlgorithmError reports key material this tool cannot use.
// An empty Algorithm means the fixed RSA, EC, DSA decode attempts all
// rejected the encoding.
type UnsupportedKeyAlgorithmError struct {
	Algorithm string
}

func (e UnsupportedKeyAlgorithmError) Error() string {
	if e.Algorithm == "" {
		return "Not an RSA, EC, or DSA private key"
	}
	return fmt.Sprintf("unsupported key algorithm: %s", e.Algorithm)
}

// KeyParseError reports a private key file that could not be parsed in the
// form its configuration demands, including the fatal case of a key password
// supplied for a blob that is not encrypted.
type KeyParseError struct {
	Path   string
	Reason string
	Err    error
}

func (e KeyParseError) Error() string {
	msg := fmt.Sprintf("%s %s", e.Reason, e.Path)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e KeyParseError) Unwrap() error {
	return e.Err
}

// SignerError wraps a credential-load failure with the signer's display
// name. The sign command returns it so main can map signer-load failures to
// exit code 2; other commands fold load failures into ConfigError.
type SignerError struct {
	Name string
	Err  error
}

func (e SignerError) Error() string {
	return fmt.Sprintf("Failed to load signer %q: %v", e.Name, e.Err)
}

func (e SignerError) Unwrap() error {
	return e.Err
}
