package privilege

import "encoding/json"

// Encode serializes a Plan for the reexec handoff (see reexec.go): the
// parent spawns itself with a marker argv[1] sentinel and passes the
// encoded plan through an environment variable, since Go's os/exec has no
// pre-exec hook equivalent to a Unix fork() child closure. The reexec'd
// process decodes this, applies the pipeline, then calls syscall.Exec to
// become the real command.
func (p *Plan) Encode() (string, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func DecodePlan(s string) (*Plan, error) {
	var p Plan
	if err := json.Unmarshal([]byte(s), &p); err != nil {
		return nil, err
	}
	return &p, nil
}
