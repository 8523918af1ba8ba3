package native

// Status is the integer result code returned by every entry point. Values are
// part of the ABI and must be preserved exactly.
type Status int32

// General security service codes.
const (
	ErrSecSuccess               Status = 0
	ErrSecUnimplemented         Status = -4
	ErrSecIO                    Status = -36
	ErrSecParam                 Status = -50
	ErrSecAllocate              Status = -108
	ErrSecUserCanceled          Status = -128
	ErrSecBadReq                Status = -909
	ErrSecUnknownFormat         Status = -25257
	ErrSecPassphraseRequired    Status = -25260
	ErrSecInvalidTrustSettings  Status = -25262
	ErrSecNoTrustSettings       Status = -25263
	ErrSecPkcs12VerifyFailure   Status = -25264
	ErrSecNotAvailable          Status = -25291
	ErrSecReadOnly              Status = -25292
	ErrSecAuthFailed            Status = -25293
	ErrSecNoSuchKeychain        Status = -25294
	ErrSecInvalidKeychain       Status = -25295
	ErrSecDuplicateKeychain     Status = -25296
	ErrSecDuplicateItem         Status = -25299
	ErrSecItemNotFound          Status = -25300
	ErrSecNoSuchAttr            Status = -25303
	ErrSecInvalidItemRef        Status = -25304
	ErrSecNoSuchClass           Status = -25306
	ErrSecNoDefaultKeychain     Status = -25307
	ErrSecInteractionNotAllowed Status = -25308
	ErrSecDecode                Status = -26275
	ErrSecMissingEntitlement    Status = -34018
	ErrSecInvalidData           Status = -67673
	ErrSecVerifyFailed          Status = -67808
	ErrSecNotTrusted            Status = -67843
	ErrSecCertificateExpired    Status = -67818
	ErrSecHostNameMismatch      Status = -67602
	ErrSecInvalidSignature      Status = -67688
)

// Secure transport codes.
const (
	ErrSSLProtocol            Status = -9800
	ErrSSLNegotiation         Status = -9801
	ErrSSLFatalAlert          Status = -9802
	ErrSSLWouldBlock          Status = -9803
	ErrSSLSessionNotFound     Status = -9804
	ErrSSLClosedGraceful      Status = -9805
	ErrSSLClosedAbort         Status = -9806
	ErrSSLXCertChainInvalid   Status = -9807
	ErrSSLBadCert             Status = -9808
	ErrSSLCrypto              Status = -9809
	ErrSSLInternal            Status = -9810
	ErrSSLUnknownRootCert     Status = -9812
	ErrSSLNoRootCert          Status = -9813
	ErrSSLCertExpired         Status = -9814
	ErrSSLClosedNoNotify      Status = -9816
	ErrSSLBufferOverflow      Status = -9817
	ErrSSLBadCipherSuite      Status = -9818
	ErrSSLPeerUnexpectedMsg   Status = -9819
	ErrSSLPeerHandshakeFail   Status = -9824
	ErrSSLPeerBadCert         Status = -9825
	ErrSSLPeerUnknownCA       Status = -9831
	ErrSSLPeerProtocolVersion Status = -9836
	ErrSSLPeerInternalError   Status = -9838
	ErrSSLPeerAuthCompleted   Status = -9841
	ErrSSLClientCertRequested Status = -9842
	ErrSSLHostNameMismatch    Status = -9843
	ErrSSLConnectionRefused   Status = -9844
	ErrSSLBadConfiguration    Status = -9848
	ErrSSLUnexpectedRecord    Status = -9849
	ErrSSLClientHelloReceived Status = -9851
)
