/*
 * MIT License
 *
 * Copyright (c) 2020 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 */

package listener

import (
	"encoding/base64"
	"encoding/json"
	"strings"

	"github.com/httptoolkit/mockttp-sub002/connection"
)

func isConnectLine(line []byte) bool {
	return len(line) >= 8 && string(line[:8]) == "CONNECT "
}

// connectTargetFromLine parses "CONNECT host:port HTTP/1.1".
func connectTargetFromLine(line []byte) (string, error) {
	parts := strings.Fields(string(line))
	if len(parts) < 2 || parts[0] != "CONNECT" {
		return "", ErrorMalformedRequestLine.Error()
	}
	return parts[1], nil
}

func firstLine(block []byte) []byte {
	if idx := indexCRLF(block); idx >= 0 {
		return block[:idx]
	}
	return block
}

// headerValue does a best-effort, case-insensitive scan for a single
// header's value within a raw, not-yet-parsed header block.
func headerValue(block []byte, name string) string {
	lines := strings.Split(string(block), "\r\n")
	for _, l := range lines {
		idx := strings.IndexByte(l, ':')
		if idx < 0 {
			continue
		}
		if strings.EqualFold(strings.TrimSpace(l[:idx]), name) {
			return strings.TrimSpace(l[idx+1:])
		}
	}
	return ""
}

// applyProxyAuthMetadata decodes a "Basic <base64(user:pass)>"
// Proxy-Authorization value and, when the password is itself base64url-JSON,
// merges it into the connection's request-scoped socket metadata.
func applyProxyAuthMetadata(c *connection.Connection, auth string) {
	const prefix = "Basic "
	if !strings.HasPrefix(auth, prefix) {
		return
	}
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(auth, prefix))
	if err != nil {
		return
	}
	parts := strings.SplitN(string(decoded), ":", 2)
	if len(parts) != 2 {
		return
	}
	password := parts[1]

	payload := []byte(password)
	if b, err := base64.RawURLEncoding.DecodeString(password); err == nil {
		payload = b
	}

	var meta map[string]interface{}
	if err := json.Unmarshal(payload, &meta); err == nil {
		for k, v := range meta {
			c.Meta().Store(k, v)
		}
		return
	}

	c.Meta().Store("proxy-auth-username", parts[0])
	c.Meta().Store("proxy-auth-password", password)
}
