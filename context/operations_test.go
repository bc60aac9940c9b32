/*
MIT License

Copyright (c) 2019 Nicolas JUHEL

Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in all
copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
SOFTWARE.
*/

package context_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	libctx "github.com/httptoolkit/mockttp-sub002/context"
)

var _ = Describe("Config Advanced Operations", func() {
	Describe("Clone", func() {
		var cfg libctx.Config[string]

		BeforeEach(func() {
			cfg = libctx.NewConfig[string](nil)
			cfg.Store("key1", "value1")
			cfg.Store("key2", 42)
			cfg.Store("key3", true)
		})

		It("should create an independent copy", func() {
			clone := cfg.Clone(nil)
			Expect(clone).ToNot(BeNil())

			// Verify cloned data
			val1, ok1 := clone.Load("key1")
			val2, ok2 := clone.Load("key2")
			val3, ok3 := clone.Load("key3")

			Expect(ok1).To(BeTrue())
			Expect(val1).To(Equal("value1"))
			Expect(ok2).To(BeTrue())
			Expect(val2).To(Equal(42))
			Expect(ok3).To(BeTrue())
			Expect(val3).To(Equal(true))
		})

		It("should not share data with original", func() {
			clone := cfg.Clone(nil)

			// Modify clone
			clone.Store("key1", "modified")
			clone.Store("new_key", "new_value")

			// Original should be unchanged
			val, ok := cfg.Load("key1")
			Expect(ok).To(BeTrue())
			Expect(val).To(Equal("value1"))

			val2, ok2 := cfg.Load("new_key")
			Expect(ok2).To(BeFalse())
			Expect(val2).To(BeNil())
		})

		It("should use custom context if provided", func() {
			customCtx := context.WithValue(context.Background(), "custom", "value")
			clone := cfg.Clone(customCtx)

			Expect(clone.Value("custom")).To(Equal("value"))
		})

		It("should preserve context function if nil context provided", func() {
			funcCtx := context.WithValue(context.Background(), "func", "value")
			cfg2 := libctx.New[string](funcCtx)
			cfg2.Store("key", "value")

			clone := cfg2.Clone(nil)
			Expect(clone).ToNot(BeNil())
		})

		It("should handle empty config", func() {
			emptyCfg := libctx.NewConfig[string](nil)
			clone := emptyCfg.Clone(nil)

			Expect(clone).ToNot(BeNil())
		})

		Context("with cancelled context", func() {
			It("should return nil when cloning cancelled config", func() {
				ctx, cancel := context.WithCancel(context.Background())
				cancelledCfg := libctx.New[string](ctx)
				cancelledCfg.Store("key", "value")
				cancel()

				clone := cancelledCfg.Clone(nil)
				Expect(clone).To(BeNil())
			})
		})
	})

	Describe("GetContext", func() {
		It("should return background context when function is nil", func() {
			cfg := libctx.NewConfig[string](nil)
			ctx := cfg.GetContext()
			Expect(ctx).ToNot(BeNil())
			Expect(ctx.Err()).To(BeNil())
		})

		It("should return context from function", func() {
			customCtx := context.WithValue(context.Background(), "test", "value")
			cfg := libctx.NewConfig[string](customCtx)

			ctx := cfg.GetContext()
			Expect(ctx).ToNot(BeNil())
			Expect(ctx.Value("test")).To(Equal("value"))
		})

		It("should return background context when function returns nil", func() {
			cfg := libctx.New[string](nil)

			ctx := cfg.GetContext()
			Expect(ctx).ToNot(BeNil())
			Expect(ctx.Err()).To(BeNil())
		})
	})
})
