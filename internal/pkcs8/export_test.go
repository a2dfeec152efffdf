package pkcs8

// Hooks for the external test package.
var (
	PKCS12KDFForTest = pkcs12KDF
	BMPStringForTest = bmpString
)
