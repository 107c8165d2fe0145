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

package keyspace

import "github.com/nabbar/rpcperf/errors"

const (
	ErrorEmptyCommands errors.CodeError = iota + errors.MinPkgKeyspace
	ErrorEmptyValues
	ErrorEmptyKeyspaces
	ErrorUnknownKeyType
	ErrorUnknownVerb
)

var isCodeError = false

func IsCodeError() bool {
	return isCodeError
}

func init() {
	isCodeError = errors.ExistInMapMessage(ErrorEmptyCommands)
	errors.RegisterIdFctMessage(ErrorEmptyCommands, getMessage)
}

func getMessage(code errors.CodeError) (message string) {
	switch code {
	case errors.UnknownError:
		return ""
	case ErrorEmptyCommands:
		return "keyspace command list must not be empty"
	case ErrorEmptyValues:
		return "a command requiring values was declared without a value distribution"
	case ErrorEmptyKeyspaces:
		return "generator built without any keyspace"
	case ErrorUnknownKeyType:
		return "unknown keyspace key_type"
	case ErrorUnknownVerb:
		return "unknown command verb"
	}

	return ""
}
