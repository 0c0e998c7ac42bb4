// Package awssig signs outbound HTTP requests with AWS SigV4. No command in
// this module calls it; cmd/cas export writes only to standard output.
package awssig

import (
	"bytes"
	"io/ioutil"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go/aws/credentials"
	v4 "github.com/aws/aws-sdk-go/aws/signer/v4"
)

// Sign signs req in place for service in region at signTime, using static
// credentials, and returns the value of the resulting Authorization header.
//
// signTime is accepted explicitly, rather than taken from time.Now,
// so the exact test vector in spec.md §8 can be reproduced deterministically.
func Sign(req *http.Request, accessKeyID, secretAccessKey, sessionToken string, region, service string, signTime time.Time) (string, error) {
	signer := v4.NewSigner(credentials.NewStaticCredentials(accessKeyID, secretAccessKey, sessionToken))

	var body []byte
	if req.Body != nil {
		var err error
		body, err = ioutil.ReadAll(req.Body)
		if err != nil {
			return "", err
		}
		req.Body = ioutil.NopCloser(bytes.NewReader(body))
	}

	if _, err := signer.Sign(req, bytes.NewReader(body), service, region, signTime); err != nil {
		return "", err
	}
	return req.Header.Get("Authorization"), nil
}
