package aitext

import "context"

// StaticGenerator は固定の文章を返すGenerator。
// APIキーを設定しない開発環境で使う。
type StaticGenerator struct {
	Text string
}

// Generate は設定された文章を返す。
func (g StaticGenerator) Generate(ctx context.Context, _ string, _ int) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return g.Text, nil
}

var _ Generator = StaticGenerator{}
