// Package native describes the fixed boundary to the platform security
// service: opaque retain-counted references, integer status codes, the
// attribute vocabulary and the entry points a backend must provide.
//
// Ownership follows the service's naming rules. Entry points named Create or
// Copy return a reference the caller owns (+1) and must release. Entry points
// named Get return a reference owned by someone else; the caller must retain
// it to keep it. References embedded in a returned container Value are owned
// by that container and are released together by Runtime.ReleaseValue.
package native

import "time"

// Ref is an opaque reference to a retain-counted native object.
type Ref uintptr

// NullRef is the null reference.
const NullRef Ref = 0

// TypeID identifies the runtime type of a Ref. Ids are assigned by the
// service and are only stable within one process.
type TypeID uint64

// Kind names a native object type so its TypeID can be resolved at runtime.
type Kind string

const (
	KindKeychain      Kind = "SecKeychain"
	KindKeychainItem  Kind = "SecKeychainItem"
	KindCertificate   Kind = "SecCertificate"
	KindIdentity      Kind = "SecIdentity"
	KindKey           Kind = "SecKey"
	KindTrust         Kind = "SecTrust"
	KindPolicy        Kind = "SecPolicy"
	KindAccess        Kind = "SecAccess"
	KindAccessControl Kind = "SecAccessControl"
	KindTransform     Kind = "SecTransform"
	KindSSLContext    Kind = "SSLContext"
)

// Value is one value crossing the boundary. The dynamic type is one of
// string, bool, int64, []byte, time.Time, Ref, Dict or []Value.
type Value any

// Dict is an attribute dictionary.
type Dict map[Key]Value

// Capability names an optional group of entry points that newer platform
// versions may not provide.
type Capability string

const (
	CapabilityTransforms    Capability = "SecTransform"
	CapabilityTrustSettings Capability = "SecTrustSettings"
	CapabilityKeychainFiles Capability = "SecKeychain"
)

// TrustResultType is the discrete outcome of trust evaluation.
type TrustResultType uint32

const (
	TrustResultInvalid                 TrustResultType = 0
	TrustResultProceed                 TrustResultType = 1
	TrustResultDeny                    TrustResultType = 3
	TrustResultUnspecified             TrustResultType = 4
	TrustResultRecoverableTrustFailure TrustResultType = 5
	TrustResultFatalTrustFailure       TrustResultType = 6
	TrustResultOtherError              TrustResultType = 7
)

// TrustSettingsDomain selects whose trust settings are read or written.
type TrustSettingsDomain uint32

const (
	TrustSettingsDomainUser   TrustSettingsDomain = 0
	TrustSettingsDomainAdmin  TrustSettingsDomain = 1
	TrustSettingsDomainSystem TrustSettingsDomain = 2
)

// TrustSettingsResultCode is the value stored under TrustSettingsResult.
type TrustSettingsResultCode uint32

const (
	TrustSettingsResultInvalid     TrustSettingsResultCode = 0
	TrustSettingsResultTrustRoot   TrustSettingsResultCode = 1
	TrustSettingsResultTrustAsRoot TrustSettingsResultCode = 2
	TrustSettingsResultDeny        TrustSettingsResultCode = 3
	TrustSettingsResultUnspecified TrustSettingsResultCode = 4
)

// RevocationFlags configures a revocation policy.
type RevocationFlags uint32

const (
	RevocationOCSPMethod              RevocationFlags = 1 << 0
	RevocationCRLMethod               RevocationFlags = 1 << 1
	RevocationPreferCRL               RevocationFlags = 1 << 2
	RevocationRequirePositiveResponse RevocationFlags = 1 << 3
	RevocationNetworkAccessDisabled   RevocationFlags = 1 << 4
)

// RevocationUseAnyAvailableMethod enables both OCSP and CRL checking.
const RevocationUseAnyAvailableMethod = RevocationOCSPMethod | RevocationCRLMethod

// AccessControlFlags constrain how an item protected by an access control
// may be used.
type AccessControlFlags uint64

const (
	AccessControlUserPresence        AccessControlFlags = 1 << 0
	AccessControlBiometryAny         AccessControlFlags = 1 << 1
	AccessControlBiometryCurrentSet  AccessControlFlags = 1 << 3
	AccessControlDevicePasscode      AccessControlFlags = 1 << 4
	AccessControlOr                  AccessControlFlags = 1 << 14
	AccessControlAnd                 AccessControlFlags = 1 << 15
	AccessControlPrivateKeyUsage     AccessControlFlags = 1 << 30
	AccessControlApplicationPassword AccessControlFlags = 1 << 31
)

// KeychainStatus is a bit set describing a keychain session.
type KeychainStatus uint32

const (
	KeychainUnlocked KeychainStatus = 1 << 0
	KeychainReadable KeychainStatus = 1 << 1
	KeychainWritable KeychainStatus = 1 << 2
)

// KeyAlgorithm names a signature algorithm for the SecKey entry points.
type KeyAlgorithm string

const (
	AlgorithmRSASignatureDigestPKCS1v15SHA256  KeyAlgorithm = "algid:sign:RSA:digest-PKCS1v15:SHA256"
	AlgorithmRSASignatureDigestPKCS1v15SHA384  KeyAlgorithm = "algid:sign:RSA:digest-PKCS1v15:SHA384"
	AlgorithmRSASignatureDigestPKCS1v15SHA512  KeyAlgorithm = "algid:sign:RSA:digest-PKCS1v15:SHA512"
	AlgorithmRSASignatureDigestPSSSHA256       KeyAlgorithm = "algid:sign:RSA:digest-PSS:SHA256:SHA256:32"
	AlgorithmRSASignatureDigestPSSSHA384       KeyAlgorithm = "algid:sign:RSA:digest-PSS:SHA384:SHA384:48"
	AlgorithmRSASignatureDigestPSSSHA512       KeyAlgorithm = "algid:sign:RSA:digest-PSS:SHA512:SHA512:64"
	AlgorithmRSASignatureMessagePKCS1v15SHA256 KeyAlgorithm = "algid:sign:RSA:message-PKCS1v15:SHA256"
	AlgorithmECDSASignatureDigestX962SHA256    KeyAlgorithm = "algid:sign:ECDSA:digest-X962:SHA256"
	AlgorithmECDSASignatureDigestX962SHA384    KeyAlgorithm = "algid:sign:ECDSA:digest-X962:SHA384"
	AlgorithmECDSASignatureDigestX962SHA512    KeyAlgorithm = "algid:sign:ECDSA:digest-X962:SHA512"
	AlgorithmECDSASignatureMessageX962SHA256   KeyAlgorithm = "algid:sign:ECDSA:message-X962:SHA256"
)

// ProtocolSide selects client or server behaviour for a secure transport
// context.
type ProtocolSide uint32

const (
	ServerSide ProtocolSide = 0
	ClientSide ProtocolSide = 1
)

// ConnectionType selects stream or datagram framing.
type ConnectionType uint32

const (
	StreamType   ConnectionType = 0
	DatagramType ConnectionType = 1
)

// SessionState is the secure transport session state.
type SessionState uint32

const (
	SessionIdle      SessionState = 0
	SessionHandshake SessionState = 1
	SessionConnected SessionState = 2
	SessionClosed    SessionState = 3
	SessionAborted   SessionState = 4
)

// SessionOption toggles a secure transport behaviour.
type SessionOption uint32

const (
	SessionOptionBreakOnServerAuth    SessionOption = 0
	SessionOptionBreakOnCertRequested SessionOption = 1
	SessionOptionBreakOnClientAuth    SessionOption = 2
	SessionOptionBreakOnClientHello   SessionOption = 7
)

// AuthenticateMode controls whether a server requests client certificates.
type AuthenticateMode uint32

const (
	NeverAuthenticate  AuthenticateMode = 0
	AlwaysAuthenticate AuthenticateMode = 1
	TryAuthenticate    AuthenticateMode = 2
)

// ProtocolVersion is a secure transport protocol identifier.
type ProtocolVersion uint32

const (
	ProtocolUnknown ProtocolVersion = 0
	ProtocolSSL3    ProtocolVersion = 2
	ProtocolTLS1    ProtocolVersion = 4
	ProtocolTLS11   ProtocolVersion = 7
	ProtocolTLS12   ProtocolVersion = 8
	ProtocolTLS13   ProtocolVersion = 10
)

// Connection is the opaque token a secure transport context hands back to
// its I/O callbacks.
type Connection uintptr

// ReadFunc must fill data completely, or return a short count together with a
// non-success status explaining why.
type ReadFunc func(conn Connection, data []byte) (int, Status)

// WriteFunc must consume data completely, or return a short count together
// with a non-success status explaining why.
type WriteFunc func(conn Connection, data []byte) (int, Status)

// ImportParams carries the optional inputs of ItemImport.
type ImportParams struct {
	Passphrase string
	Keychain   Ref
}

// Timestamp converts a stored Value to a time when it holds one.
func Timestamp(v Value) (time.Time, bool) {
	t, ok := v.(time.Time)
	return t, ok
}
