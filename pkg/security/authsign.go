package security

import (
	"bytes"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/beevik/etree"
	"github.com/leifj/signedxml"

	"github.com/sirosfoundation/go-ebics/pkg/keys"
)

// Algorithm URIs used in the AuthSignature
const (
	NSXMLDSig          = "http://www.w3.org/2000/09/xmldsig#"
	AlgorithmRSASHA256 = "http://www.w3.org/2001/04/xmldsig-more#rsa-sha256"
	AlgorithmSHA256    = "http://www.w3.org/2001/04/xmlenc#sha256"
	AlgorithmC14N      = "http://www.w3.org/2001/10/xml-exc-c14n#"

	// AuthenticatedReference selects every element marked for authentication
	AuthenticatedReference = "#xpointer(//*[@authenticate='true'])"

	authSignatureTag = "AuthSignature"
)

// Common errors
var (
	ErrSignatureMissing   = errors.New("authentication signature missing")
	ErrSignatureInvalid   = fmt.Errorf("%w: authentication signature invalid", keys.ErrCrypto)
	ErrNoAuthenticatedXML = errors.New("no elements marked for authentication")
)

// AuthenticatedElements returns the elements below root carrying
// authenticate="true", in document order
func AuthenticatedElements(root *etree.Element) []*etree.Element {
	var out []*etree.Element
	var walk func(e *etree.Element)
	walk = func(e *etree.Element) {
		if e.SelectAttrValue("authenticate", "") == "true" {
			out = append(out, e)
		}
		for _, c := range e.ChildElements() {
			walk(c)
		}
	}
	walk(root)
	return out
}

// Canonicalize returns the exclusive canonical form of elem.
// Namespace declarations inherited from ancestors are carried over, so the result
// is the same whether elem is canonicalized in place or on its own.
func Canonicalize(elem *etree.Element) ([]byte, error) {
	detached := elem.Copy()
	for _, ns := range inheritedNamespaces(elem) {
		if !hasAttr(detached, ns.Space, ns.Key) {
			detached.CreateAttr(ns.FullKey(), ns.Value)
		}
	}

	canonicalizer := signedxml.ExclusiveCanonicalization{WithComments: false}
	canonical, err := canonicalizer.ProcessElement(detached, "")
	if err != nil {
		return nil, fmt.Errorf("failed to canonicalize %s: %w", elem.Tag, err)
	}
	return []byte(canonical), nil
}

// AuthenticatedDigest returns the SHA-256 digest over the concatenated canonical
// forms of all authenticated elements
func AuthenticatedDigest(root *etree.Element) ([]byte, error) {
	elems := AuthenticatedElements(root)
	if len(elems) == 0 {
		return nil, ErrNoAuthenticatedXML
	}

	hash := sha256.New()
	for _, elem := range elems {
		canonical, err := Canonicalize(elem)
		if err != nil {
			return nil, err
		}
		hash.Write(canonical)
	}
	return hash.Sum(nil), nil
}

// SignDocument adds an AuthSignature to doc, signed with the authentication key pair.
// The signature is inserted in front of the body element, or appended to the root
// when there is no body. Signing is deterministic.
func SignDocument(doc *etree.Document, kp *keys.KeyPair) error {
	if kp == nil || kp.Role() != keys.RoleAuthentication {
		return fmt.Errorf("%w: authentication key pair is required", keys.ErrCrypto)
	}
	root := doc.Root()
	if root == nil {
		return fmt.Errorf("no root element found")
	}
	if root.SelectElement(authSignatureTag) != nil {
		return fmt.Errorf("document is already signed")
	}

	digest, err := AuthenticatedDigest(root)
	if err != nil {
		return err
	}

	sig := etree.NewElement(authSignatureTag)
	sig.CreateAttr("xmlns:ds", NSXMLDSig)

	signedInfo := sig.CreateElement("ds:SignedInfo")
	signedInfo.CreateElement("ds:CanonicalizationMethod").CreateAttr("Algorithm", AlgorithmC14N)
	signedInfo.CreateElement("ds:SignatureMethod").CreateAttr("Algorithm", AlgorithmRSASHA256)

	ref := signedInfo.CreateElement("ds:Reference")
	ref.CreateAttr("URI", AuthenticatedReference)
	ref.CreateElement("ds:Transforms").CreateElement("ds:Transform").CreateAttr("Algorithm", AlgorithmC14N)
	ref.CreateElement("ds:DigestMethod").CreateAttr("Algorithm", AlgorithmSHA256)
	ref.CreateElement("ds:DigestValue").SetText(base64.StdEncoding.EncodeToString(digest))

	if body := root.SelectElement("body"); body != nil {
		root.InsertChildAt(body.Index(), sig)
	} else {
		root.AddChild(sig)
	}

	canonicalSignedInfo, err := Canonicalize(signedInfo)
	if err != nil {
		root.RemoveChild(sig)
		return err
	}
	signedDigest := sha256.Sum256(canonicalSignedInfo)

	signature, err := keys.Sign(nil, kp, signedDigest[:])
	if err != nil {
		root.RemoveChild(sig)
		return err
	}
	sig.CreateElement("ds:SignatureValue").SetText(base64.StdEncoding.EncodeToString(signature))

	return nil
}

// VerifyDocument checks the AuthSignature of doc against the authentication key pub.
// It returns ErrSignatureMissing when doc carries no signature and an error
// wrapping ErrSignatureInvalid when the signature does not verify.
func VerifyDocument(doc *etree.Document, pub *rsa.PublicKey) error {
	root := doc.Root()
	if root == nil {
		return fmt.Errorf("no root element found")
	}
	sig := root.SelectElement(authSignatureTag)
	if sig == nil {
		return ErrSignatureMissing
	}
	signedInfo := sig.SelectElement("SignedInfo")
	if signedInfo == nil {
		return fmt.Errorf("%w: SignedInfo missing", ErrSignatureInvalid)
	}

	if alg := algorithm(signedInfo, "CanonicalizationMethod"); alg != AlgorithmC14N {
		return fmt.Errorf("%w: unsupported canonicalization %q", ErrSignatureInvalid, alg)
	}
	if alg := algorithm(signedInfo, "SignatureMethod"); alg != AlgorithmRSASHA256 {
		return fmt.Errorf("%w: unsupported signature method %q", ErrSignatureInvalid, alg)
	}

	ref := signedInfo.SelectElement("Reference")
	if ref == nil || ref.SelectAttrValue("URI", "") != AuthenticatedReference {
		return fmt.Errorf("%w: unexpected reference", ErrSignatureInvalid)
	}
	if alg := algorithm(ref, "DigestMethod"); alg != AlgorithmSHA256 {
		return fmt.Errorf("%w: unsupported digest method %q", ErrSignatureInvalid, alg)
	}
	expected, err := decodeText(ref.SelectElement("DigestValue"))
	if err != nil {
		return fmt.Errorf("%w: digest value: %v", ErrSignatureInvalid, err)
	}

	digest, err := AuthenticatedDigest(root)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
	}
	if !bytes.Equal(digest, expected) {
		return fmt.Errorf("%w: digest mismatch", ErrSignatureInvalid)
	}

	signature, err := decodeText(sig.SelectElement("SignatureValue"))
	if err != nil {
		return fmt.Errorf("%w: signature value: %v", ErrSignatureInvalid, err)
	}
	canonicalSignedInfo, err := Canonicalize(signedInfo)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
	}
	signedDigest := sha256.Sum256(canonicalSignedInfo)

	if err := keys.Verify(keys.RoleAuthentication, pub, signedDigest[:], signature); err != nil {
		return fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
	}
	return nil
}

// inheritedNamespaces collects the namespace declarations in scope at elem
// that are declared on its ancestors. The nearest declaration wins.
func inheritedNamespaces(elem *etree.Element) []etree.Attr {
	var out []etree.Attr
	seen := make(map[string]bool)
	for _, a := range elem.Attr {
		if isNamespaceDecl(a) {
			seen[a.Key+"/"+a.Space] = true
		}
	}
	for p := elem.Parent(); p != nil; p = p.Parent() {
		for _, a := range p.Attr {
			if !isNamespaceDecl(a) || seen[a.Key+"/"+a.Space] {
				continue
			}
			seen[a.Key+"/"+a.Space] = true
			out = append(out, etree.Attr{Space: a.Space, Key: a.Key, Value: a.Value})
		}
	}
	return out
}

func isNamespaceDecl(a etree.Attr) bool {
	return a.Space == "xmlns" || (a.Space == "" && a.Key == "xmlns")
}

func hasAttr(e *etree.Element, space, key string) bool {
	for _, a := range e.Attr {
		if a.Space == space && a.Key == key {
			return true
		}
	}
	return false
}

func algorithm(parent *etree.Element, name string) string {
	e := parent.SelectElement(name)
	if e == nil {
		return ""
	}
	return e.SelectAttrValue("Algorithm", "")
}

func decodeText(e *etree.Element) ([]byte, error) {
	if e == nil {
		return nil, fmt.Errorf("element missing")
	}
	return base64.StdEncoding.DecodeString(strings.Join(strings.Fields(e.Text()), ""))
}
