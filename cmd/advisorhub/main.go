// Command advisorhub は招待台帳とペルソナ強化のAPIサーバー・ワーカー・運用コマンドを提供する。
//
//	advisorhub [serve]            APIサーバー
//	advisorhub worker             強化ジョブとセッション掃除のワーカー
//	advisorhub migrate            DBマイグレーション
//	advisorhub healthcheck        /health の疎通確認（Dockerヘルスチェック用）
//	advisorhub status             トークン所有者の強化ジョブ状態のポーリング
package main

import (
	"fmt"
	"os"

	"github.com/hitoshi/advisorhub/internal/app"
)

func main() {
	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
