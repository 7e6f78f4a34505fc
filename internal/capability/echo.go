package capability

import (
	"context"
	"encoding/json"

	"reactnet/httpd"
	"reactnet/util"
)

// Echo replies with a JSON description of the request it received.
type Echo struct{}

type echoParam struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type echoReply struct {
	Method string      `json:"method"`
	URI    string      `json:"uri"`
	Params []echoParam `json:"params"`
	Body   string      `json:"body"`
	Peer   string      `json:"peer"`
}

// Handle sends 200 application/json.
func (Echo) Handle(_ context.Context, req *httpd.Session) error {
	reply := echoReply{
		Method: req.Method(),
		URI:    req.URI(),
		Params: make([]echoParam, 0, req.NumParams()),
		Body:   string(req.Body()),
		Peer:   util.FormatAddr(req.PeerIP(), req.PeerPort()),
	}
	for _, p := range req.Params() {
		reply.Params = append(reply.Params, echoParam{Name: p.Name, Value: p.Value})
	}
	data, err := json.Marshal(reply)
	if err != nil {
		return req.SendResponse(500, "text/plain", err.Error()+"\n")
	}
	return req.SendResponseBytes(200, "application/json", append(data, '\n'))
}
