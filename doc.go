/*
Package drew is a stateless conversation engine that guides a tradesperson
through building a quote, one turn at a time.

The dialogue is a declarative finite-state machine: greeting, job selection,
scoping questions, a material checklist, product selection, labor, markup,
review and done, plus a clarify state that re-asks whatever the user did not
answer clearly. Every turn is a pure function of the request:

	(state, context, input, settings) -> (state, context, message, quick replies)

The engine keeps no memory between turns. The caller stores the returned
context and hands it back verbatim with the next input.

# Collaborators

Language-model interpretation, the product catalog, the tradecraft knowledge
base and quote persistence live behind interfaces in package ports. Any of them
may be absent or fail; the conversation degrades instead of erroring.

# Usage

	eng, err := drew.New(
		drew.WithKnowledgeBase(library),
		drew.WithProductSearcher(catalog),
	)
	if err != nil {
		log.Fatal(err)
	}

	settings := domain.Settings{DefaultLaborRate: 85, Currency: "$"}
	resp, err := eng.Start(ctx, settings)
	for err == nil && !resp.Complete {
		fmt.Println(resp.Message, resp.QuickReplies)
		resp, err = eng.Dispatch(ctx, domain.Request{
			State:    resp.State,
			Context:  resp.Context,
			Input:    domain.Input{Text: readLine()},
			Settings: settings,
		})
	}

Dispatch only returns an error when the machine definition itself is broken
(*domain.ContractError). Misunderstood input routes to clarify.
*/
package drew
