// Package domain define contratos e tipos de domínio para o controle de admissão.
//
// Este pacote não depende de net/http nem de implementações concretas.
// A intenção é permitir testes de unidade puros e desacoplar o algoritmo de
// janela deslizante de detalhes de infraestrutura (Redis, memória, etc).
package domain
