package utils

import (
	"runtime"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = DescribeTable("Truncate",
	func(in string, maxLen int, want string) {
		Expect(Truncate(in, maxLen)).To(Equal(want))
	},
	Entry("shorter than the limit", "short", 10, "short"),
	Entry("exactly at the limit", "12345", 5, "12345"),
	Entry("longer than the limit", "this is a long string", 10, "this is a ..."),
	Entry("multi-byte within the limit", "多喝水", 3, "多喝水"),
	Entry("multi-byte over the limit", "多喝水多休息", 3, "多喝水..."),
	Entry("mixed script", "問題：頭痛怎麼辦", 3, "問題：..."),
)

var _ = Describe("Info", func() {
	It("reports the link-time values and the runtime", func() {
		info := Info()
		Expect(info.Version).To(Equal(Version))
		Expect(info.Sha).To(Equal(Sha))
		Expect(info.GoVersion).To(Equal(runtime.Version()))
		Expect(info.Platform).To(Equal(runtime.GOOS + "/" + runtime.GOARCH))
	})
})
