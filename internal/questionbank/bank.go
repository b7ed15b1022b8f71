package questionbank

import (
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultIntro 固定的开场题
const DefaultIntro = "Tell me about yourself and what brings you to this role."

var (
	ErrInvalidRole = errors.New("no questions available for role")
	ErrEmptyBank   = errors.New("question bank has no generic fallback pool")
)

// Question 面试题
type Question struct {
	ID      string `json:"id" yaml:"id"`
	Text    string `json:"text" yaml:"text"`
	Ordinal int    `json:"ordinal" yaml:"ordinal"`
}

// Bank 题库，启动时加载一次，之后只读
type Bank struct {
	Intro   string              `yaml:"intro"`
	Common  []string            `yaml:"common"`
	Generic []string            `yaml:"generic"`
	Roles   map[string][]string `yaml:"roles"`
	Sectors map[string][]string `yaml:"sectors"`
}

// LoadFile 从 YAML 文件加载题库
func LoadFile(path string) (*Bank, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read question bank: %w", err)
	}
	return Parse(data)
}

// Parse 解析 YAML 题库
func Parse(data []byte) (*Bank, error) {
	var b Bank
	if err := yaml.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("parse question bank: %w", err)
	}
	if err := b.normalize(); err != nil {
		return nil, err
	}
	return &b, nil
}

func (b *Bank) normalize() error {
	b.Intro = strings.TrimSpace(b.Intro)
	if b.Intro == "" {
		b.Intro = DefaultIntro
	}
	if len(b.Generic) == 0 {
		return ErrEmptyBank
	}
	b.Roles = lowerKeys(b.Roles)
	b.Sectors = lowerKeys(b.Sectors)
	return nil
}

func lowerKeys(in map[string][]string) map[string][]string {
	out := make(map[string][]string, len(in))
	for k, v := range in {
		key := strings.ToLower(strings.TrimSpace(k))
		out[key] = append(out[key], v...)
	}
	return out
}

// Default 内置题库
func Default() *Bank {
	b := &Bank{
		Intro: DefaultIntro,
		Common: []string{
			"What are your greatest strengths?",
			"Describe a challenging situation at work and how you handled it.",
			"Where do you see yourself in five years?",
			"Tell me about a time you worked effectively as part of a team.",
			"How do you handle feedback and criticism?",
		},
		Generic: []string{
			"Why are you interested in this position?",
			"What motivates you to do your best work?",
			"Describe a project you are proud of.",
			"How do you prioritize when everything seems urgent?",
		},
		Roles: map[string][]string{
			"software engineer": {
				"Walk me through the design of a system you built.",
				"How do you approach debugging a production incident?",
				"How do you decide between shipping quickly and refactoring?",
				"Describe how you review other people's code.",
			},
			"data scientist": {
				"How do you validate that a model is ready for production?",
				"Explain a time your analysis changed a business decision.",
				"How do you handle missing or noisy data?",
			},
			"product manager": {
				"How do you decide what not to build?",
				"Tell me about a product launch that did not go as planned.",
				"How do you balance stakeholder requests with user needs?",
			},
		},
		Sectors: map[string][]string{
			"healthcare": {"How would you handle sensitive patient data in your work?"},
			"finance":    {"How do you make sure your work meets regulatory requirements?"},
			"education":  {"How would you explain a complex idea to a non-expert?"},
		},
	}
	_ = b.normalize()
	return b
}

// Pools 为角色与行业组合候选池：通用题、角色题、行业题；角色无题时退回通用兜底池
func (b *Bank) Pools(role, sector string) ([]string, error) {
	rolePool := b.Roles[strings.ToLower(strings.TrimSpace(role))]
	if len(rolePool) == 0 {
		rolePool = b.Generic
	}
	if len(rolePool) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}
	pool := make([]string, 0, len(b.Common)+len(rolePool))
	pool = append(pool, b.Common...)
	pool = append(pool, rolePool...)
	if sector != "" {
		pool = append(pool, b.Sectors[strings.ToLower(strings.TrimSpace(sector))]...)
	}
	return pool, nil
}

// Select 选出 n 道题（含开场题），不重复；候选不足时取全部
func (b *Bank) Select(role, sector string, n int, rng *rand.Rand) ([]Question, error) {
	pool, err := b.Pools(role, sector)
	if err != nil {
		return nil, err
	}
	if n < 1 {
		n = 1
	}

	seen := map[string]bool{normalizeText(b.Intro): true}
	unique := make([]string, 0, len(pool))
	for _, q := range pool {
		key := normalizeText(q)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		unique = append(unique, strings.TrimSpace(q))
	}
	if rng != nil {
		rng.Shuffle(len(unique), func(i, j int) { unique[i], unique[j] = unique[j], unique[i] })
	}

	texts := append([]string{b.Intro}, unique[:min(n-1, len(unique))]...)
	out := make([]Question, len(texts))
	for i, text := range texts {
		out[i] = Question{ID: questionID(text), Text: text, Ordinal: i}
	}
	return out, nil
}

// Size 返回某角色可用的题目数（含开场题）
func (b *Bank) Size(role, sector string) int {
	qs, err := b.Select(role, sector, 1<<16, nil)
	if err != nil {
		return 0
	}
	return len(qs)
}

func normalizeText(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

func questionID(text string) string {
	sum := sha1.Sum([]byte(normalizeText(text)))
	return "q-" + hex.EncodeToString(sum[:6])
}
