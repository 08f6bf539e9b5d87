package corpus_test

import (
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/parley/pkg/corpus"
)

func parseAll(p corpus.Parser, text string) ([]corpus.Unit, corpus.Stats, error) {
	var (
		stats corpus.Stats
		units []corpus.Unit
	)
	for u, err := range p.Parse(strings.NewReader(text), &stats) {
		if err != nil {
			return units, stats, err
		}
		units = append(units, u)
	}
	return units, stats, nil
}

func texts(units []corpus.Unit) []string {
	out := make([]string, len(units))
	for i, u := range units {
		out[i] = u.Text
	}
	return out
}

var _ = Describe("NewParser", func() {
	It("returns the flat parser", func() {
		p, err := corpus.NewParser(corpus.ModeFlat)
		Expect(err).NotTo(HaveOccurred())
		Expect(p.Mode()).To(Equal(corpus.ModeFlat))
	})

	It("returns the paired parser", func() {
		p, err := corpus.NewParser(corpus.ModePaired)
		Expect(err).NotTo(HaveOccurred())
		Expect(p.Mode()).To(Equal(corpus.ModePaired))
	})

	It("rejects unknown modes", func() {
		_, err := corpus.NewParser("auto")
		Expect(err).To(MatchError(corpus.ErrUnknownMode))
	})
})

var _ = Describe("FlatParser", func() {
	p := corpus.FlatParser{}

	It("strips the speaker prefix", func() {
		units, _, err := parseAll(p, "醫生: 多喝水\n")
		Expect(err).NotTo(HaveOccurred())
		Expect(texts(units)).To(Equal([]string{"多喝水"}))
	})

	It("keeps a line split only by a fullwidth colon whole", func() {
		units, _, err := parseAll(p, "病人：好的\n")
		Expect(err).NotTo(HaveOccurred())
		Expect(texts(units)).To(Equal([]string{"病人：好的"}))
	})

	It("splits at the ASCII colon even after a fullwidth one", func() {
		units, _, err := parseAll(p, "病人：王先生: 我頭痛\n")
		Expect(err).NotTo(HaveOccurred())
		Expect(texts(units)).To(Equal([]string{"我頭痛"}))
	})

	It("splits at the earliest delimiter only", func() {
		units, _, err := parseAll(p, "護士: 時間是 10:30\n")
		Expect(err).NotTo(HaveOccurred())
		Expect(texts(units)).To(Equal([]string{"時間是 10:30"}))
	})

	It("keeps lines without a delimiter whole", func() {
		units, _, err := parseAll(p, "  多休息  \n")
		Expect(err).NotTo(HaveOccurred())
		Expect(texts(units)).To(Equal([]string{"多休息"}))
	})

	It("keeps the whole line when nothing follows the delimiter", func() {
		units, _, err := parseAll(p, "醫生:\n")
		Expect(err).NotTo(HaveOccurred())
		Expect(texts(units)).To(Equal([]string{"醫生:"}))
	})

	It("emits one unit per non-empty line and skips blanks", func() {
		units, stats, err := parseAll(p, "a: one\n\n   \nb: two\nthree\n")
		Expect(err).NotTo(HaveOccurred())
		Expect(texts(units)).To(Equal([]string{"one", "two", "three"}))
		Expect(stats.Lines).To(Equal(5))
		for _, u := range units {
			Expect(u.IsPair()).To(BeFalse())
		}
	})

	It("fails on invalid UTF-8", func() {
		_, _, err := parseAll(p, "ok\n\xff\xfe\n")
		Expect(err).To(MatchError(corpus.ErrNotText))
	})
})

var _ = Describe("PairedParser", func() {
	p := corpus.PairedParser{}

	It("pairs a question with the following answer", func() {
		units, _, err := parseAll(p, "問題：頭痛怎麼辦\n回答：多休息\n")
		Expect(err).NotTo(HaveOccurred())
		Expect(units).To(HaveLen(1))
		Expect(units[0].Question).To(Equal("頭痛怎麼辦"))
		Expect(units[0].Answer).To(Equal("多休息"))
		Expect(units[0].IsPair()).To(BeTrue())
		Expect(units[0].EmbedText()).To(Equal("頭痛怎麼辦"))
		Expect(units[0].Content()).To(Equal("多休息"))
	})

	It("accepts every label spelling and colon variant", func() {
		text := "問: q1\n答: a1\n問題: q2\n回答: a2\nQ: q3\nA：a3\nQuestion: q4\nAnswer: a4\n"
		units, _, err := parseAll(p, text)
		Expect(err).NotTo(HaveOccurred())
		Expect(units).To(HaveLen(4))
		Expect(units[2].Question).To(Equal("q3"))
		Expect(units[2].Answer).To(Equal("a3"))
	})

	It("skips unlabeled lines and answers without a question", func() {
		units, stats, err := parseAll(p, "開場白\n答：orphan\n問：q\n閒聊\n答：a\n")
		Expect(err).NotTo(HaveOccurred())
		Expect(units).To(HaveLen(1))
		Expect(units[0].Answer).To(Equal("a"))
		Expect(stats.SkippedLines).To(Equal(3))
	})

	It("does not treat a label without a delimiter as a label", func() {
		units, _, err := parseAll(p, "問題很多\n答案是\n")
		Expect(err).NotTo(HaveOccurred())
		Expect(units).To(BeEmpty())
	})

	It("keeps the latest question when two arrive before an answer", func() {
		units, _, err := parseAll(p, "問：first\n問：second\n答：a\n")
		Expect(err).NotTo(HaveOccurred())
		Expect(units).To(HaveLen(1))
		Expect(units[0].Question).To(Equal("second"))
	})

	It("drops a trailing question without an answer", func() {
		units, stats, err := parseAll(p, "問：q1\n答：a1\n問：q2\n")
		Expect(err).NotTo(HaveOccurred())
		Expect(units).To(HaveLen(1))
		Expect(stats.DroppedQuestions).To(Equal(1))
	})

	It("never emits a pair with an empty side", func() {
		units, _, err := parseAll(p, "問：\n答：a\n問：q\n答：\n")
		Expect(err).NotTo(HaveOccurred())
		Expect(units).To(BeEmpty())
	})
})
