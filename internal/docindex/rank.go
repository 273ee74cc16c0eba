package docindex

import (
	"math"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	minTermRunes = 2
	// 候选粗筛时最多使用的检索词数量，避免长 query 生成过长的 SQL。
	maxCandidateTerms = 48

	bm25K1 = 1.2
)

// tokenize 对文本做 Unicode 大小写折叠后按非字母数字切分。
func tokenize(s string) []string {
	// Caser 有状态，不能跨 goroutine 共享。
	return splitWords(cases.Fold().String(s))
}

func splitWords(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// queryTerms 返回去重后的检索词（保持首次出现顺序），过滤过短的词。
func queryTerms(query string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, tok := range tokenize(query) {
		if len([]rune(tok)) < minTermRunes {
			continue
		}
		if _, ok := seen[tok]; ok {
			continue
		}
		seen[tok] = struct{}{}
		out = append(out, tok)
	}
	return out
}

// candidateTerms 返回粗筛用的 LIKE 词。SQLite 的 LIKE 只对 ASCII 忽略大小写，
// 含非 ASCII 字符的词额外带上原始、小写、大写和首字母大写写法，排序阶段再按折叠后的词打分。
func candidateTerms(query string) []string {
	var (
		out   []string
		seen  = make(map[string]struct{})
		bases = make(map[string]struct{})
	)
	add := func(s string) {
		if _, ok := seen[s]; !ok {
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	for _, word := range splitWords(query) {
		base := cases.Fold().String(word)
		if len([]rune(base)) < minTermRunes {
			continue
		}
		if _, ok := bases[base]; !ok {
			if len(bases) >= maxCandidateTerms {
				continue
			}
			bases[base] = struct{}{}
		}
		add(base)
		if isASCII(word) {
			continue
		}
		add(word)
		add(cases.Lower(language.Und).String(word))
		add(cases.Upper(language.Und).String(word))
		add(cases.Title(language.Und).String(word))
	}
	return out
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}

func termFreq(tokens []string) map[string]int {
	tf := make(map[string]int, len(tokens))
	for _, t := range tokens {
		tf[t]++
	}
	return tf
}

type scoredText struct {
	tf map[string]int
}

// scorer 在一组候选文本上计算 keyword / semantic / hybrid 分数。
type scorer struct {
	terms []string
	qtf   map[string]int
	docs  []scoredText
	idf   map[string]float64
}

func newScorer(query string, texts []string) *scorer {
	s := &scorer{
		terms: queryTerms(query),
		qtf:   termFreq(tokenize(query)),
		idf:   make(map[string]float64),
	}
	df := make(map[string]int)
	for _, text := range texts {
		tf := termFreq(tokenize(text))
		s.docs = append(s.docs, scoredText{tf: tf})
		for _, term := range s.terms {
			if tf[term] > 0 {
				df[term]++
			}
		}
	}
	n := float64(len(texts))
	for _, term := range s.terms {
		s.idf[term] = math.Log(1 + (n-float64(df[term])+0.5)/(float64(df[term])+0.5))
	}
	return s
}

func (s *scorer) keyword(i int) float64 {
	var score float64
	tf := s.docs[i].tf
	for _, term := range s.terms {
		f := float64(tf[term])
		if f == 0 {
			continue
		}
		score += s.idf[term] * f * (bm25K1 + 1) / (f + bm25K1)
	}
	return score
}

// semantic 用词频向量的余弦相似度近似语义相关度。
func (s *scorer) semantic(i int) float64 {
	tf := s.docs[i].tf
	var dot, qn, dn float64
	for term, qf := range s.qtf {
		dot += float64(qf) * float64(tf[term])
		qn += float64(qf * qf)
	}
	for _, f := range tf {
		dn += float64(f * f)
	}
	if qn == 0 || dn == 0 {
		return 0
	}
	return dot / (math.Sqrt(qn) * math.Sqrt(dn))
}

// scores 按检索类型返回每个候选的分数，keyword 分数按最大值归一到 [0,1]。
func (s *scorer) scores(kind SearchType) []float64 {
	out := make([]float64, len(s.docs))
	kw := make([]float64, len(s.docs))
	var maxKW float64
	for i := range s.docs {
		kw[i] = s.keyword(i)
		if kw[i] > maxKW {
			maxKW = kw[i]
		}
	}
	for i := range s.docs {
		normKW := 0.0
		if maxKW > 0 {
			normKW = kw[i] / maxKW
		}
		switch kind {
		case SearchKeyword:
			out[i] = normKW
		case SearchHybrid:
			out[i] = 0.5*normKW + 0.5*s.semantic(i)
		default:
			out[i] = s.semantic(i)
		}
	}
	return out
}
