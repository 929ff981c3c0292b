package owserr

import (
	"encoding/json"
	"encoding/xml"
	"net/http"
	"strings"
)

const (
	owsNamespace = "http://www.opengis.net/ows/1.1"
	version      = "2.0.0"
)

type xmlReport struct {
	XMLName    xml.Name       `xml:"ows:ExceptionReport"`
	XmlnsOWS   string         `xml:"xmlns:ows,attr"`
	Version    string         `xml:"version,attr"`
	Exceptions []xmlException `xml:"ows:Exception"`
}

type xmlException struct {
	Code    string `xml:"exceptionCode,attr"`
	Locator string `xml:"locator,attr,omitempty"`
	Text    string `xml:"ows:ExceptionText"`
}

type jsonReport struct {
	Version    string          `json:"version"`
	Exceptions []jsonException `json:"exceptions"`
}

type jsonException struct {
	Code    string `json:"code"`
	Locator string `json:"locator,omitempty"`
	Text    string `json:"text"`
}

// EncodeXML renders err as an OWS ExceptionReport document.
func EncodeXML(err error) ([]byte, error) {
	rep := xmlReport{XmlnsOWS: owsNamespace, Version: version}
	for _, e := range Flatten(err) {
		rep.Exceptions = append(rep.Exceptions, xmlException{
			Code:    string(e.Code),
			Locator: e.Locator,
			Text:    e.Message,
		})
	}
	b, mErr := xml.MarshalIndent(rep, "", "  ")
	if mErr != nil {
		return nil, mErr
	}
	return append([]byte(xml.Header), b...), nil
}

func EncodeJSON(err error) ([]byte, error) {
	rep := jsonReport{Version: version, Exceptions: []jsonException{}}
	for _, e := range Flatten(err) {
		rep.Exceptions = append(rep.Exceptions, jsonException{
			Code:    string(e.Code),
			Locator: e.Locator,
			Text:    e.Message,
		})
	}
	return json.Marshal(rep)
}

// WantsXML reports whether the client asked for an XML exception report.
func WantsXML(r *http.Request) bool {
	if r == nil {
		return false
	}
	if strings.Contains(strings.ToLower(r.Header.Get("Accept")), "xml") {
		return true
	}
	return strings.Contains(strings.ToLower(r.Header.Get("Content-Type")), "xml")
}

// Write sends err as an exception report, negotiated on r.
func Write(w http.ResponseWriter, r *http.Request, err error) {
	WriteStatus(w, r, err, Status(err))
}

// WriteStatus is Write with an explicit HTTP status.
func WriteStatus(w http.ResponseWriter, r *http.Request, err error, status int) {
	var (
		body []byte
		eErr error
	)
	if WantsXML(r) {
		body, eErr = EncodeXML(err)
		w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	} else {
		body, eErr = EncodeJSON(err)
		w.Header().Set("Content-Type", "application/json")
	}
	if eErr != nil {
		http.Error(w, err.Error(), status)
		return
	}
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
