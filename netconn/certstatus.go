package netconn

import (
	"bytes"
	"crypto/x509"
	"errors"
	"time"
)

// CertStatus is a peer-certificate verification result.  The numbering
// follows the X.509 verify codes used by the classic TLS toolkits so
// that values logged by this package can be compared with theirs.
type CertStatus int

const (
	CertNoPeerCertificate         CertStatus = -1
	CertOK                        CertStatus = 0
	CertUnableToGetIssuerCert     CertStatus = 2
	CertUnableToGetCRL            CertStatus = 3
	CertUnableToDecryptCertSig    CertStatus = 4
	CertUnableToDecryptCRLSig     CertStatus = 5
	CertUnableToDecodeIssuerKey   CertStatus = 6
	CertSignatureFailure          CertStatus = 7
	CertCRLSignatureFailure       CertStatus = 8
	CertNotYetValid               CertStatus = 9
	CertHasExpired                CertStatus = 10
	CertCRLNotYetValid            CertStatus = 11
	CertCRLHasExpired             CertStatus = 12
	CertErrorInNotBeforeField     CertStatus = 13
	CertErrorInNotAfterField      CertStatus = 14
	CertErrorInCRLLastUpdateField CertStatus = 15
	CertErrorInCRLNextUpdateField CertStatus = 16
	CertOutOfMemory               CertStatus = 17
	CertDepthZeroSelfSigned       CertStatus = 18
	CertSelfSignedInChain         CertStatus = 19
	CertUnableToGetIssuerLocally  CertStatus = 20
	CertUnableToVerifyLeafSig     CertStatus = 21
	CertChainTooLong              CertStatus = 22
	CertRevoked                   CertStatus = 23
	CertInvalidCA                 CertStatus = 24
	CertPathLengthExceeded        CertStatus = 25
	CertInvalidPurpose            CertStatus = 26
	CertUntrusted                 CertStatus = 27
	CertRejected                  CertStatus = 28
	CertSubjectIssuerMismatch     CertStatus = 29
	CertAKIDSKIDMismatch          CertStatus = 30
	CertAKIDIssuerSerialMismatch  CertStatus = 31
	CertKeyUsageNoCertSign        CertStatus = 32
	CertApplicationVerification   CertStatus = 50
	CertHostnameMismatch          CertStatus = 62
)

var certStatusText = map[CertStatus]string{
	CertNoPeerCertificate:         "unable to get peer certificate",
	CertOK:                        "certificate ok",
	CertUnableToGetIssuerCert:     "unable to get issuer certificate",
	CertUnableToGetCRL:            "unable to get certificate CRL",
	CertUnableToDecryptCertSig:    "unable to decrypt certificate's signature",
	CertUnableToDecryptCRLSig:     "unable to decrypt CRL's signature",
	CertUnableToDecodeIssuerKey:   "unable to decode issuer public key",
	CertSignatureFailure:          "certificate signature failure",
	CertCRLSignatureFailure:       "CRL signature failure",
	CertNotYetValid:               "certificate is not yet valid",
	CertHasExpired:                "certificate has expired",
	CertCRLNotYetValid:            "CRL is not yet valid",
	CertCRLHasExpired:             "CRL has expired",
	CertErrorInNotBeforeField:     "format error in certificate's notBefore field",
	CertErrorInNotAfterField:      "format error in certificate's notAfter field",
	CertErrorInCRLLastUpdateField: "format error in CRL's lastUpdate field",
	CertErrorInCRLNextUpdateField: "format error in CRL's nextUpdate field",
	CertOutOfMemory:               "out of memory",
	CertDepthZeroSelfSigned:       "self signed certificate",
	CertSelfSignedInChain:         "self signed certificate in certificate chain",
	CertUnableToGetIssuerLocally:  "unable to get local issuer certificate",
	CertUnableToVerifyLeafSig:     "unable to verify the first certificate",
	CertChainTooLong:              "certificate chain too long",
	CertRevoked:                   "certificate revoked",
	CertInvalidCA:                 "invalid CA certificate",
	CertPathLengthExceeded:        "path length constraint exceeded",
	CertInvalidPurpose:            "unsupported certificate purpose",
	CertUntrusted:                 "certificate not trusted",
	CertRejected:                  "certificate rejected",
	CertSubjectIssuerMismatch:     "subject issuer mismatch",
	CertAKIDSKIDMismatch:          "authority and subject key identifier mismatch",
	CertAKIDIssuerSerialMismatch:  "authority and issuer serial number mismatch",
	CertKeyUsageNoCertSign:        "key usage does not include certificate signing",
	CertApplicationVerification:   "application verification failure",
	CertHostnameMismatch:          "hostname mismatch",
}

// String returns the human text for the status.
func (s CertStatus) String() string {
	if t, ok := certStatusText[s]; ok {
		return t
	}
	return "unknown error"
}

// CertificateStatusString is the free-function form of
// [CertStatus.String] for callers holding a raw code.
func CertificateStatusString(code int) string { return CertStatus(code).String() }

// verifyPeer checks the presented chain and maps the outcome onto a
// CertStatus.  It never fails the handshake; the result is only
// recorded.  An empty roots pool (no-chain mode) means nothing is
// trusted, which reports the missing local issuer.
func verifyPeer(chain []*x509.Certificate, roots *x509.CertPool, dnsName string, now time.Time) CertStatus {
	if len(chain) == 0 {
		return CertNoPeerCertificate
	}
	inter := x509.NewCertPool()
	for _, c := range chain[1:] {
		inter.AddCert(c)
	}
	opts := x509.VerifyOptions{
		Roots:         roots,
		Intermediates: inter,
		DNSName:       dnsName,
		CurrentTime:   now,
	}
	if _, err := chain[0].Verify(opts); err != nil {
		return classifyVerifyError(err, chain, now)
	}
	return CertOK
}

func classifyVerifyError(err error, chain []*x509.Certificate, now time.Time) CertStatus {
	var invalid x509.CertificateInvalidError
	if errors.As(err, &invalid) {
		switch invalid.Reason {
		case x509.Expired:
			if invalid.Cert != nil && now.Before(invalid.Cert.NotBefore) {
				return CertNotYetValid
			}
			return CertHasExpired
		case x509.NotAuthorizedToSign:
			return CertKeyUsageNoCertSign
		case x509.CANotAuthorizedForThisName, x509.CANotAuthorizedForExtKeyUsage:
			return CertInvalidCA
		case x509.TooManyIntermediates:
			return CertChainTooLong
		case x509.IncompatibleUsage:
			return CertInvalidPurpose
		case x509.NameMismatch:
			return CertSubjectIssuerMismatch
		case x509.TooManyConstraints, x509.NameConstraintsWithoutSANs, x509.UnconstrainedName:
			return CertPathLengthExceeded
		default:
			return CertRejected
		}
	}

	var unknown x509.UnknownAuthorityError
	if errors.As(err, &unknown) {
		leaf := chain[0]
		if len(chain) == 1 && bytes.Equal(leaf.RawIssuer, leaf.RawSubject) {
			return CertDepthZeroSelfSigned
		}
		last := chain[len(chain)-1]
		if len(chain) > 1 && bytes.Equal(last.RawIssuer, last.RawSubject) {
			return CertSelfSignedInChain
		}
		return CertUnableToGetIssuerLocally
	}

	var host x509.HostnameError
	if errors.As(err, &host) {
		return CertHostnameMismatch
	}

	var roots x509.SystemRootsError
	if errors.As(err, &roots) {
		return CertUnableToGetIssuerLocally
	}

	var sig x509.InsecureAlgorithmError
	if errors.As(err, &sig) {
		return CertSignatureFailure
	}
	return CertRejected
}
