// Copyright 2025 PolyCrypt GmbH
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package wire

import (
	"bytes"

	xdr3 "github.com/stellar/go-xdr/xdr3"
	"github.com/stellar/go/xdr"
)

func marshalScVal(v xdr.ScVal) ([]byte, error) {
	buf := bytes.Buffer{}
	e := xdr3.NewEncoder(&buf)
	if err := v.EncodeTo(e); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func unmarshalScVal(data []byte) (xdr.ScVal, error) {
	var v xdr.ScVal
	d := xdr3.NewDecoder(bytes.NewReader(data))
	_, err := d.Decode(&v)
	return v, err
}
