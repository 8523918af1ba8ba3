package native

import "time"

// Service is the complete set of entry points of the platform security
// service. Every call is synchronous and blocking.
type Service interface {
	Runtime
	Keychains
	Items
	Certificates
	Keys
	Policies
	Access
	Trusts
	TrustSettings
	Importer
	Transforms
	SecureTransport
}

// Runtime covers reference counting, type identification and error text.
type Runtime interface {
	Retain(ref Ref) Ref
	Release(ref Ref)
	RetainCount(ref Ref) int
	GetTypeID(ref Ref) TypeID
	// TypeIDForKind returns 0 when the kind is not known to the service.
	TypeIDForKind(kind Kind) TypeID
	CopyErrorMessageString(code Status) (string, bool)
	// ReleaseValue releases every reference held by a container returned
	// from a Copy entry point.
	ReleaseValue(v Value)
	HasCapability(c Capability) bool
}

// Keychains manages keychain sessions.
type Keychains interface {
	KeychainCreate(path string, password []byte) (Ref, Status)
	KeychainOpen(path string) (Ref, Status)
	KeychainCopyDefault() (Ref, Status)
	KeychainSetDefault(keychain Ref) Status
	KeychainDelete(keychain Ref) Status
	KeychainLock(keychain Ref) Status
	KeychainUnlock(keychain Ref, password []byte) Status
	KeychainGetStatus(keychain Ref) (KeychainStatus, Status)
	KeychainGetPath(keychain Ref) (string, Status)
}

// Items is the query dictionary interface to stored items.
type Items interface {
	ItemCopyMatching(query Dict) (Value, Status)
	ItemAdd(attributes Dict) (Value, Status)
	ItemUpdate(query, changes Dict) Status
	ItemDelete(query Dict) Status
	KeychainItemCopyKeychain(item Ref) (Ref, Status)
	KeychainItemCreatePersistentReference(item Ref) ([]byte, Status)
	KeychainItemDelete(item Ref) Status
}

// Certificates covers certificate and identity objects.
type Certificates interface {
	// CertificateCreateWithData returns NullRef when der is not a certificate.
	CertificateCreateWithData(der []byte) Ref
	CertificateCopyData(cert Ref) []byte
	CertificateCopySubjectSummary(cert Ref) string
	CertificateCopyCommonName(cert Ref) (string, Status)
	CertificateCopyEmailAddresses(cert Ref) ([]string, Status)
	CertificateCopySerialNumberData(cert Ref) ([]byte, Status)
	// CertificateCopyKey returns NullRef when the key cannot be decoded.
	CertificateCopyKey(cert Ref) Ref
	IdentityCreateWithCertificate(searchList []Ref, cert Ref) (Ref, Status)
	IdentityCopyCertificate(identity Ref) (Ref, Status)
	IdentityCopyPrivateKey(identity Ref) (Ref, Status)
}

// Keys covers asymmetric and symmetric key objects.
type Keys interface {
	KeyCreateRandomKey(parameters Dict) (Ref, Status)
	KeyCreateWithData(data []byte, attributes Dict) (Ref, Status)
	// KeyCopyPublicKey returns NullRef for symmetric keys.
	KeyCopyPublicKey(key Ref) Ref
	KeyCopyExternalRepresentation(key Ref) ([]byte, Status)
	KeyCopyAttributes(key Ref) Dict
	KeyCreateSignature(key Ref, algorithm KeyAlgorithm, data []byte) ([]byte, Status)
	KeyVerifySignature(key Ref, algorithm KeyAlgorithm, data, signature []byte) Status
}

// Policies creates evaluation policies.
type Policies interface {
	PolicyCreateSSL(server bool, hostname string) Ref
	PolicyCreateBasicX509() Ref
	PolicyCreateRevocation(flags RevocationFlags) Ref
	PolicyCopyProperties(policy Ref) Dict
}

// Access creates access objects that can be attached to items.
type Access interface {
	AccessCreate(descriptor string, trustedApplications []string) (Ref, Status)
	AccessControlCreateWithFlags(protection string, flags AccessControlFlags) (Ref, Status)
}

// Trusts evaluates certificate chains.
type Trusts interface {
	TrustCreateWithCertificates(certs []Ref, policies []Ref) (Ref, Status)
	TrustSetAnchorCertificates(trust Ref, anchors []Ref) Status
	TrustSetAnchorCertificatesOnly(trust Ref, only bool) Status
	TrustSetPolicies(trust Ref, policies []Ref) Status
	TrustSetVerifyDate(trust Ref, date time.Time) Status
	TrustSetNetworkFetchAllowed(trust Ref, allowed bool) Status
	// TrustEvaluate returns the raw result code.
	TrustEvaluate(trust Ref) (uint32, Status)
	TrustEvaluateWithError(trust Ref) (bool, Status)
	TrustGetCertificateCount(trust Ref) int
	// TrustGetCertificateAtIndex follows the get rule.
	TrustGetCertificateAtIndex(trust Ref, index int) Ref
	TrustCopyPublicKey(trust Ref) Ref
}

// TrustSettings reads and writes per-domain trust settings.
type TrustSettings interface {
	// TrustSettingsCopyCertificates returns a []Value of certificate refs.
	TrustSettingsCopyCertificates(domain TrustSettingsDomain) (Value, Status)
	// TrustSettingsCopyTrustSettings returns a []Value of Dict.
	TrustSettingsCopyTrustSettings(cert Ref, domain TrustSettingsDomain) (Value, Status)
	TrustSettingsSetTrustSettings(cert Ref, domain TrustSettingsDomain, settings Value) Status
	TrustSettingsRemoveTrustSettings(cert Ref, domain TrustSettingsDomain) Status
}

// Importer decodes certificate, key and identity bundles.
type Importer interface {
	// ItemImport selects the format from the file name or extension hint and
	// returns a []Value of certificate, identity and key refs.
	ItemImport(data []byte, fileNameOrExtension string, params ImportParams) (Value, Status)
	// PKCS12Import returns a []Value of Dict keyed by the ImportItem keys.
	PKCS12Import(data []byte, passphrase string) (Value, Status)
}

// Transforms is the deprecated transform API. It is present only when
// HasCapability(CapabilityTransforms) reports true.
type Transforms interface {
	DigestTransformCreate(digestType string, length int) (Ref, Status)
	EncryptTransformCreate(key Ref) (Ref, Status)
	DecryptTransformCreate(key Ref) (Ref, Status)
	SignTransformCreate(key Ref) (Ref, Status)
	VerifyTransformCreate(key Ref, signature []byte) (Ref, Status)
	TransformSetAttribute(transform Ref, key Key, value Value) Status
	TransformExecute(transform Ref) (Value, Status)
}

// SecureTransport is the callback driven TLS engine.
type SecureTransport interface {
	// SSLCreateContext returns NullRef when the context cannot be allocated.
	SSLCreateContext(side ProtocolSide, connType ConnectionType) Ref
	SSLSetIOFuncs(ctx Ref, read ReadFunc, write WriteFunc) Status
	SSLSetConnection(ctx Ref, conn Connection) Status
	SSLGetConnection(ctx Ref) (Connection, Status)
	SSLSetPeerDomainName(ctx Ref, name string) Status
	SSLGetPeerDomainName(ctx Ref) (string, Status)
	// SSLSetCertificate takes an identity followed by optional chain
	// certificates.
	SSLSetCertificate(ctx Ref, certs []Ref) Status
	SSLSetProtocolVersionMin(ctx Ref, v ProtocolVersion) Status
	SSLSetProtocolVersionMax(ctx Ref, v ProtocolVersion) Status
	SSLGetNegotiatedProtocolVersion(ctx Ref) (ProtocolVersion, Status)
	SSLSetALPNProtocols(ctx Ref, protocols []string) Status
	SSLCopyALPNProtocols(ctx Ref) ([]string, Status)
	SSLSetSessionOption(ctx Ref, option SessionOption, value bool) Status
	SSLSetClientSideAuthenticate(ctx Ref, mode AuthenticateMode) Status
	SSLGetSessionState(ctx Ref) (SessionState, Status)
	// SSLCopyPeerTrust returns NullRef before the peer certificate arrives.
	SSLCopyPeerTrust(ctx Ref) (Ref, Status)
	SSLHandshake(ctx Ref) Status
	SSLRead(ctx Ref, data []byte) (int, Status)
	SSLWrite(ctx Ref, data []byte) (int, Status)
	SSLGetBufferedReadSize(ctx Ref) (int, Status)
	SSLClose(ctx Ref) Status
}
