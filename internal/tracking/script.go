package tracking

import (
	"fmt"
	"html/template"
	"io"
)

// AjaxAction is the async action name the add_to_cart script calls.
const AjaxAction = "get_product_data_for_ga4"

// The script posts clicks on single product and listing add-to-cart buttons
// to the async endpoint and pushes the returned payload. A button is ignored
// for one second after a click.
var addToCartTmpl = template.Must(template.New("add_to_cart").Parse(`<script>
(function(){
  var E={{.Endpoint}},N={{.Nonce}},A={{.Action}};
  window.dataLayer=window.dataLayer||[];

  function send(productId,quantity,button){
    if(!productId||button.classList.contains('ga4-processing'))return;
    button.classList.add('ga4-processing');
    var body=new URLSearchParams({action:A,product_id:productId,quantity:quantity||1,security:N});
    fetch(E,{method:'POST',body:body,credentials:'same-origin',keepalive:true})
      .then(function(r){return r.json();})
      .then(function(res){
        if(res&&res.success){
          window.dataLayer.push({event:'add_to_cart',ecommerce:{currency:res.data.currency,value:res.data.value,items:[res.data.item]}});
        }else if(window.console){
          console.warn('ga4 add_to_cart failed',res);
        }
      })
      .catch(function(err){if(window.console){console.warn('ga4 add_to_cart error',err);}})
      .then(function(){setTimeout(function(){button.classList.remove('ga4-processing');},1000);});
  }

  document.addEventListener('click',function(e){
    var button=e.target.closest('.single_add_to_cart_button, .add_to_cart_button');
    if(!button)return;
    if(button.classList.contains('single_add_to_cart_button')){
      if(button.classList.contains('disabled')||button.classList.contains('wc-variation-selection-needed'))return;
      var form=button.closest('form.cart');
      var field=function(name){var el=form&&form.querySelector('[name="'+name+'"]');return el?el.value:'';};
      send(field('add-to-cart')||field('product_id')||button.value,field('quantity')||1,button);
      return;
    }
    send(button.dataset.product_id,button.dataset.quantity||1,button);
  });
})();
</script>
`))

type addToCartScriptData struct {
	Endpoint string
	Nonce    string
	Action   string
}

// WriteAddToCartScript writes the add_to_cart bootstrap for endpoint, signed with nonce.
func WriteAddToCartScript(w io.Writer, endpoint, nonce string) error {
	data := addToCartScriptData{Endpoint: endpoint, Nonce: nonce, Action: AjaxAction}
	if err := addToCartTmpl.Execute(w, data); err != nil {
		return fmt.Errorf("failed to render add_to_cart script: %w", err)
	}
	return nil
}
