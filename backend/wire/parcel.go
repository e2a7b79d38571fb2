// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package wire

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"errors"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// parcelBody is the signed portion of a parcel envelope.
type parcelBody struct {
	RecipientAddress  string `cbor:"1,keyasint"`
	SenderCertificate []byte `cbor:"2,keyasint"`
	MessageID         string `cbor:"3,keyasint"`
	CreationTime      int64  `cbor:"4,keyasint"`
	TTLSeconds        uint32 `cbor:"5,keyasint"`
	Payload           []byte `cbor:"6,keyasint"`
}

type signedEnvelope struct {
	Body      []byte `cbor:"1,keyasint"`
	Signature []byte `cbor:"2,keyasint"`
}

// Parcel is an end-to-end message between endpoint applications, signed by
// the sender's key and carrying the sender's certificate.
type Parcel struct {
	RecipientAddress  string
	SenderCertificate []byte
	MessageID         string
	CreationTime      time.Time
	TTL               time.Duration
	Payload           []byte

	signedBody []byte
	signature  []byte
}

const kindParcel = "parcel"

// SerializeParcel encodes and signs a parcel with the sender's key. The
// certificate embedded in the parcel must match that key for the result to
// verify.
func SerializeParcel(p *Parcel, senderKey *rsa.PrivateKey) ([]byte, error) {
	body := parcelBody{
		RecipientAddress:  p.RecipientAddress,
		SenderCertificate: p.SenderCertificate,
		MessageID:         p.MessageID,
		CreationTime:      p.CreationTime.Unix(),
		TTLSeconds:        uint32(p.TTL / time.Second),
		Payload:           p.Payload,
	}
	return sealEnvelope(body, senderKey)
}

// DeserializeParcel decodes a parcel envelope without trusting it. Callers
// must run Verify before acting on any field other than for logging.
func DeserializeParcel(raw []byte) (*Parcel, error) {
	var env signedEnvelope
	if err := cbor.Unmarshal(raw, &env); err != nil {
		return nil, malformed(kindParcel, err)
	}
	var body parcelBody
	if err := cbor.Unmarshal(env.Body, &body); err != nil {
		return nil, malformed(kindParcel, err)
	}
	if body.RecipientAddress == "" || body.MessageID == "" {
		return nil, malformed(kindParcel, errors.New("missing addressing fields"))
	}
	return &Parcel{
		RecipientAddress:  body.RecipientAddress,
		SenderCertificate: body.SenderCertificate,
		MessageID:         body.MessageID,
		CreationTime:      time.Unix(body.CreationTime, 0),
		TTL:               time.Duration(body.TTLSeconds) * time.Second,
		Payload:           body.Payload,
		signedBody:        env.Body,
		signature:         env.Signature,
	}, nil
}

// Verify checks the sender signature and the validity window. It returns
// the sender certificate on success.
func (p *Parcel) Verify(now time.Time) (*x509.Certificate, error) {
	cert, err := verifyEnvelope(kindParcel, p.SenderCertificate, p.signedBody, p.signature)
	if err != nil {
		return nil, err
	}
	if p.Expiry().Before(now) {
		return nil, invalid(kindParcel, errors.New("parcel expired"))
	}
	return cert, nil
}

// Expiry is the instant after which the parcel must not be delivered.
func (p *Parcel) Expiry() time.Time {
	return p.CreationTime.Add(p.TTL)
}

func sealEnvelope(body interface{}, key *rsa.PrivateKey) ([]byte, error) {
	bodyRaw, err := cbor.Marshal(body)
	if err != nil {
		return nil, err
	}
	digest := sha256.Sum256(bodyRaw)
	sig, err := rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA256, digest[:])
	if err != nil {
		return nil, err
	}
	return cbor.Marshal(signedEnvelope{Body: bodyRaw, Signature: sig})
}

func verifyEnvelope(kind string, certDER, body, sig []byte) (*x509.Certificate, error) {
	if len(certDER) == 0 {
		return nil, invalid(kind, errors.New("sender certificate missing"))
	}
	cert, err := x509.ParseCertificate(certDER)
	if err != nil {
		return nil, invalid(kind, err)
	}
	pub, ok := cert.PublicKey.(*rsa.PublicKey)
	if !ok {
		return nil, invalid(kind, errors.New("sender key is not RSA"))
	}
	digest := sha256.Sum256(body)
	if err := rsa.VerifyPKCS1v15(pub, crypto.SHA256, digest[:], sig); err != nil {
		return nil, invalid(kind, err)
	}
	return cert, nil
}
