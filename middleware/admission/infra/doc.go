// Package infra contém implementações concretas (infraestrutura) para os
// contratos definidos no pacote domain.
//
// Exemplos:
//   - RedisWindowStore: janela deslizante em sorted set, atômica via script Lua
//   - MemoryWindowStore: mesma semântica em memória, para testes/dev
//   - RedisStatsStore / MemoryStatsStore: contadores best-effort de admissão
//   - Shield: token bucket por upstream usando golang.org/x/time/rate
//   - ChanPool: semáforo simples para limite de concorrência
package infra
