package native

// Key is one entry of the fixed attribute vocabulary. Unrecognised keys are
// ignored by the service, so a misspelt key silently matches nothing.
type Key string

// Item classes and query structure.
const (
	KeyClass                Key = "class"
	KeyMatchLimit           Key = "m_Limit"
	KeyMatchSearchList      Key = "m_SearchList"
	KeyMatchSubjectContains Key = "m_SubjectContains"
	KeyMatchTrustedOnly     Key = "m_TrustedOnly"
	KeyReturnData           Key = "r_Data"
	KeyReturnAttributes     Key = "r_Attributes"
	KeyReturnRef            Key = "r_Ref"
	KeyReturnPersistentRef  Key = "r_PersistentRef"
	KeyValueData            Key = "v_Data"
	KeyValueRef             Key = "v_Ref"
	KeyValuePersistentRef   Key = "v_PersistentRef"
	KeyUseKeychain          Key = "u_Keychain"
)

// Item attributes.
const (
	AttrService            Key = "svce"
	AttrAccount            Key = "acct"
	AttrServer             Key = "srvr"
	AttrProtocol           Key = "ptcl"
	AttrPath               Key = "path"
	AttrPort               Key = "port"
	AttrAuthenticationType Key = "atyp"
	AttrSecurityDomain     Key = "sdmn"
	AttrLabel              Key = "labl"
	AttrDescription        Key = "desc"
	AttrComment            Key = "icmt"
	AttrCreator            Key = "crtr"
	AttrType               Key = "type"
	AttrGeneric            Key = "gena"
	AttrSynchronizable     Key = "sync"
	AttrAccessible         Key = "pdmn"
	AttrAccessControl      Key = "accc"
	AttrAccess             Key = "acls"
	AttrAccessGroup        Key = "agrp"
	AttrCreationDate       Key = "cdat"
	AttrModificationDate   Key = "mdat"
	AttrSubject            Key = "subj"
	AttrIssuer             Key = "issr"
	AttrSerialNumber       Key = "slnr"
	AttrCertificateType    Key = "ctyp"
	AttrKeyClass           Key = "kcls"
	AttrKeyType            Key = "type"
	AttrKeySizeInBits      Key = "bsiz"
	AttrApplicationLabel   Key = "klbl"
	AttrApplicationTag     Key = "atag"
	AttrIsPermanent        Key = "perm"
	AttrCanSign            Key = "sign"
	AttrCanDecrypt         Key = "decr"
	AttrPublicKeyHash      Key = "pkhh"
)

// Class values.
const (
	ClassGenericPassword  = "genp"
	ClassInternetPassword = "inet"
	ClassCertificate      = "cert"
	ClassKey              = "keys"
	ClassIdentity         = "idnt"
)

// Match limits.
const (
	MatchLimitOne = "m_LimitOne"
	MatchLimitAll = "m_LimitAll"
)

// Accessibility values for AttrAccessible.
const (
	AccessibleWhenUnlocked                   = "ak"
	AccessibleAfterFirstUnlock               = "ck"
	AccessibleWhenUnlockedThisDeviceOnly     = "aku"
	AccessibleAfterFirstUnlockThisDeviceOnly = "cku"
	AccessibleWhenPasscodeSetThisDeviceOnly  = "akpu"
)

// Internet password protocols.
const (
	ProtocolHTTP  = "http"
	ProtocolHTTPS = "htps"
	ProtocolFTP   = "ftp "
	ProtocolSSH   = "ssh "
	ProtocolSMTP  = "smtp"
	ProtocolIMAP  = "imap"
	ProtocolLDAP  = "ldap"
)

// Internet password authentication types.
const (
	AuthenticationTypeDefault    = "dflt"
	AuthenticationTypeHTTPBasic  = "http"
	AuthenticationTypeHTTPDigest = "httd"
	AuthenticationTypeHTMLForm   = "form"
)

// Key attributes and values.
const (
	KeyClassPublic    = "0"
	KeyClassPrivate   = "1"
	KeyClassSymmetric = "2"

	KeyTypeRSA              = "42"
	KeyTypeECSECPrimeRandom = "73"
	KeyTypeAES              = "2147483649"
)

// Trust settings dictionary keys.
const (
	TrustSettingsPolicy       Key = "kSecTrustSettingsPolicy"
	TrustSettingsPolicyName   Key = "kSecTrustSettingsPolicyName"
	TrustSettingsPolicyString Key = "kSecTrustSettingsPolicyString"
	TrustSettingsResult       Key = "kSecTrustSettingsResult"
	TrustSettingsAllowedError Key = "kSecTrustSettingsAllowedError"
	TrustSettingsKeyUsage     Key = "kSecTrustSettingsKeyUsage"
)

// Policy property keys and well known policy names.
const (
	PolicyOid    Key = "SecPolicyOid"
	PolicyName   Key = "SecPolicyName"
	PolicyClient Key = "SecPolicyClient"

	PolicyNameSSLServer  = "sslServer"
	PolicyNameSSLClient  = "sslClient"
	PolicyNameBasicX509  = "basicX509"
	PolicyNameRevocation = "revocation"

	PolicyOidAppleSSL        = "1.2.840.113635.100.1.3"
	PolicyOidAppleX509Basic  = "1.2.840.113635.100.1.2"
	PolicyOidAppleRevocation = "1.2.840.113635.100.1.32"
)

// Transform attribute names.
const (
	TransformInput          Key = "INPUT"
	TransformDigestType     Key = "DigestType"
	TransformDigestLength   Key = "DigestLength"
	TransformHMACKey        Key = "HMACKey"
	TransformPadding        Key = "Padding"
	TransformEncryptionMode Key = "EncryptionMode"
	TransformIV             Key = "IV"
	TransformInputIs        Key = "InputIs"
	TransformSignature      Key = "Signature"
	TransformOAEPParameters Key = "OAEPEncodingParameters"
	TransformOAEPMGF1Digest Key = "OAEPMGF1DigestAlgo"
	TransformOAEPMessageLen Key = "OAEPMessageLength"
)

// Digest types.
const (
	DigestSHA1     = "SHA1"
	DigestSHA2     = "SHA2"
	DigestMD5      = "MD5"
	DigestHMACSHA1 = "HMAC-SHA1"
	DigestHMACSHA2 = "HMAC-SHA2"
	DigestHMACMD5  = "HMAC-MD5"
)

// Padding and block cipher modes.
const (
	PaddingNone  = "SecPaddingNone"
	PaddingPKCS1 = "SecPaddingPKCS1Key"
	PaddingPKCS7 = "SecPaddingPKCS7Key"
	PaddingOAEP  = "SecPaddingOAEPKey"

	ModeNone = "NoMode"
	ModeECB  = "ECBMode"
	ModeCBC  = "CBCMode"
	ModeCFB  = "CFBMode"
	ModeOFB  = "OFBMode"

	InputIsPlainText = "PlainText"
	InputIsDigest    = "Digest"
	InputIsRaw       = "Raw"
)

// PKCS#12 import result keys.
const (
	ImportItemLabel     Key = "label"
	ImportItemKeyID     Key = "keyid"
	ImportItemTrust     Key = "trust"
	ImportItemCertChain Key = "chain"
	ImportItemIdentity  Key = "identity"
)
