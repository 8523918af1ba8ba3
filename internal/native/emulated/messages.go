package emulated

import "github.com/benaskins/secframe/internal/native"

var messages = map[native.Status]string{
	native.ErrSecUnimplemented:         "Function or operation not implemented.",
	native.ErrSecIO:                    "I/O error.",
	native.ErrSecParam:                 "One or more parameters passed to a function were not valid.",
	native.ErrSecAllocate:              "Failed to allocate memory.",
	native.ErrSecUserCanceled:          "User canceled the operation.",
	native.ErrSecBadReq:                "Bad parameter or invalid state for operation.",
	native.ErrSecUnknownFormat:         "Unknown format in import.",
	native.ErrSecPassphraseRequired:    "Passphrase is required for import/export.",
	native.ErrSecInvalidTrustSettings:  "The trust settings record was corrupted.",
	native.ErrSecNoTrustSettings:       "No trust results are available.",
	native.ErrSecPkcs12VerifyFailure:   "MAC verification failed during PKCS12 import (wrong password?)",
	native.ErrSecNotAvailable:          "No keychain is available. You may need to restart your computer.",
	native.ErrSecReadOnly:              "This keychain cannot be modified.",
	native.ErrSecAuthFailed:            "The user name or passphrase you entered is not correct.",
	native.ErrSecNoSuchKeychain:        "The specified keychain could not be found.",
	native.ErrSecInvalidKeychain:       "The specified keychain is not a valid keychain file.",
	native.ErrSecDuplicateKeychain:     "A keychain with the same name already exists.",
	native.ErrSecDuplicateItem:         "The specified item already exists in the keychain.",
	native.ErrSecItemNotFound:          "The specified item could not be found in the keychain.",
	native.ErrSecNoSuchAttr:            "The specified attribute does not exist.",
	native.ErrSecInvalidItemRef:        "The specified item is no longer valid. It may have been deleted from the keychain.",
	native.ErrSecNoSuchClass:           "The specified item class does not exist.",
	native.ErrSecNoDefaultKeychain:     "A default keychain could not be found.",
	native.ErrSecInteractionNotAllowed: "User interaction is not allowed.",
	native.ErrSecDecode:                "Unable to decode the provided data.",
	native.ErrSecMissingEntitlement:    "A required entitlement isn't present.",
	native.ErrSecInvalidData:           "The data is not valid.",
	native.ErrSecVerifyFailed:          "A cryptographic verification failure has occurred.",
	native.ErrSecNotTrusted:            "The certificate is not trusted.",
	native.ErrSecCertificateExpired:    "An expired certificate was detected.",
	native.ErrSecHostNameMismatch:      "A host name mismatch has occurred.",
	native.ErrSecInvalidSignature:      "An invalid signature was encountered.",

	native.ErrSSLProtocol:            "SSL protocol error",
	native.ErrSSLNegotiation:         "Cipher Suite negotiation failure",
	native.ErrSSLFatalAlert:          "Fatal alert",
	native.ErrSSLWouldBlock:          "I/O would block (not fatal)",
	native.ErrSSLSessionNotFound:     "attempt to restore an unknown session",
	native.ErrSSLClosedGraceful:      "connection closed gracefully",
	native.ErrSSLClosedAbort:         "connection closed via error",
	native.ErrSSLXCertChainInvalid:   "invalid certificate chain",
	native.ErrSSLBadCert:             "bad certificate format",
	native.ErrSSLCrypto:              "underlying cryptographic error",
	native.ErrSSLInternal:            "Internal error",
	native.ErrSSLUnknownRootCert:     "valid cert chain, untrusted root",
	native.ErrSSLNoRootCert:          "cert chain not verified by root",
	native.ErrSSLCertExpired:         "chain had an expired cert",
	native.ErrSSLClosedNoNotify:      "server closed session with no notification",
	native.ErrSSLBufferOverflow:      "insufficient buffer provided",
	native.ErrSSLBadCipherSuite:      "bad SSLCipherSuite",
	native.ErrSSLPeerUnexpectedMsg:   "unexpected message received",
	native.ErrSSLPeerHandshakeFail:   "handshake failure",
	native.ErrSSLPeerBadCert:         "misc. bad certificate",
	native.ErrSSLPeerUnknownCA:       "unknown Cert Authority",
	native.ErrSSLPeerProtocolVersion: "bad protocol version",
	native.ErrSSLPeerInternalError:   "internal error",
	native.ErrSSLPeerAuthCompleted:   "peer cert is valid, or was ignored if verification disabled",
	native.ErrSSLClientCertRequested: "server has requested a client cert",
	native.ErrSSLHostNameMismatch:    "peer host name mismatch",
	native.ErrSSLConnectionRefused:   "peer dropped connection before responding",
	native.ErrSSLBadConfiguration:    "configuration error",
	native.ErrSSLUnexpectedRecord:    "unexpected (skipped) record in DTLS",
	native.ErrSSLClientHelloReceived: "SNI",
}

func (s *Service) CopyErrorMessageString(code native.Status) (string, bool) {
	msg, ok := messages[code]
	return msg, ok
}
