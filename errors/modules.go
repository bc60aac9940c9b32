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
 *
 */

package errors

// Code ranges for every package of the mock/interception server that raises
// a liberr.Error. Each package reserves a 20-wide block so new error codes
// can be appended without colliding with the next package.
const (
	MinPkgConnection   = 80
	MinPkgTLSHello     = 200
	MinPkgListener     = 300
	MinPkgSocks        = 320
	MinPkgRequest      = 400
	MinPkgWebsocket    = 420
	MinPkgRule         = 500
	MinPkgStep         = 600
	MinPkgPassthrough  = 700
	MinPkgClientError  = 800
	MinPkgEventBus     = 900
	MinPkgServer       = 1000
	MinPkgConfig       = 1100
	MinPkgLogger       = 1200
	MinPkgCA           = 1300
	MinPkgHTTPClient   = 1400

	MinAvailable = 2000

	// MIN_AVAILABLE @Deprecated use MinAvailable constant
	MIN_AVAILABLE = MinAvailable
)
