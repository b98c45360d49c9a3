package ui

import "embed"

//go:generate bash -c "set -euo pipefail; cd ../../webconsole && corepack enable && pnpm install --frozen-lockfile && node scripts/build-if-changed.mjs --out ../internal/ui/dist"

// Dir embeds the console frontend in dist/. The module ships a small demo
// console there (index.html, app.js, style.css); the go:generate step above
// writes the full dashboard build into dist/ instead. The placeholder page
// is served only when dist/ holds no index.html.
//
//go:embed dist
var Dir embed.FS
