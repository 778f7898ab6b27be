// Package admission fornece o checkpoint de admissão do gateway: um rate
// limiter de janela deslizante, distribuído, compartilhado por todas as
// instâncias via um store de contagem (Redis), mais o cap de concorrência e o
// shield por upstream.
//
// Visão geral (camadas):
//
//   - domain: contratos e tipos do domínio (sem dependência de net/http)
//   - application: o algoritmo de janela (decisão allow/deny + cota) sem net/http
//   - infra: implementações concretas (sorted set no Redis via script Lua,
//     janela em memória, stats, semáforo, token bucket por upstream)
//   - admission (este pacote): middlewares HTTP + catálogo de policies +
//     derivação de chave + tradução para status/headers
//
// Fluxo por request protegido:
//
//  1. Resolve a policy anexada à rota; sem policy, o request passa intocado
//  2. Deriva a chave (generator da policy, identidade do caller, ou IP)
//  3. Chama a camada application para obter a decisão (um round trip ao store)
//  4. Emite os headers de cota (RateLimit-* e X-RateLimit-*) e, se negado,
//     responde 429 com corpo estruturado
//  5. Qualquer falha do store ou da derivação de chave resolve em fail-open:
//     o request é admitido, sem headers, com a falha logada e contada
//
// Nada deste subsistema vira 5xx para o cliente: disponibilidade do gateway
// vale mais que aplicação estrita do limite quando a infraestrutura de
// contagem está degradada.
package admission
